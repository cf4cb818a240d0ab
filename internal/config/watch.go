package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "dolphinbot/pkg/logx"
)

const (
	// reloadDebounce lets editors finish a save (write, rename, chmod)
	// before the file is read.
	reloadDebounce = 250 * time.Millisecond

	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// Watch reloads the config whenever its file changes, until ctx is done.
// The directory is watched rather than the file so atomic saves (write to a
// temp file, rename over) are seen. A broken watcher is recreated with
// jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	backoff := watchBackoffMin
	for {
		started := false
		err := m.watchDir(ctx, dir, name, func() {
			started = true
			backoff = watchBackoffMin
		})
		if ctx.Err() != nil {
			return nil
		}
		wait := backoff + rand.N(backoff/2+1)
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.Bool("was_running", started),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		backoff = min(backoff*2, watchBackoffMax)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// watchDir runs one fsnotify watcher until it breaks or ctx ends.
func (m *Manager) watchDir(ctx context.Context, dir, name string, running func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	running()
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	pending := time.NewTimer(reloadDebounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("fsnotify events channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) {
				pending.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed")
			}
			switch {
			case errors.Is(err, fsnotify.ErrEventOverflow):
				// Events were lost; the file may have changed.
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				pending.Reset(reloadDebounce)
			case errors.Is(err, fsnotify.ErrClosed):
				return err
			default:
				m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
			}
		case <-pending.C:
			m.reloadFile(ctx)
		}
	}
}

func (m *Manager) reloadFile(ctx context.Context) {
	ch, err := m.Reload(ctx)
	switch {
	case err != nil:
		m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
	case ch.Empty():
		m.log.Debug("config file touched without changes", logx.String("path", m.path))
	case len(ch.Restart) > 0:
		m.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(ch.Restart, ",")))
	}
}
