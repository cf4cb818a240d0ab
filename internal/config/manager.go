package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	logx "dolphinbot/pkg/logx"
)

// validateTimeout bounds the extra validator installed by the app.
const validateTimeout = 5 * time.Second

// Manager owns the live config. A reload is transactional: the file is
// parsed, validated and diffed against the live config before anything is
// committed, and subscribers only hear about changes they can apply without
// a restart.
type Manager struct {
	path string
	log  logx.Logger

	// check runs after Config.Validate on every reload.
	check func(ctx context.Context, cfg *Config) error

	mu  sync.RWMutex
	cur *Config

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop(), subs: map[chan *Config]struct{}{}}
}

func (m *Manager) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		m.log = log
	}
}

// SetValidator installs an extra check, run after Config.Validate and before
// a reloaded config is committed.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) { m.check = fn }

func (m *Manager) Path() string { return m.path }

// Parse reads and decodes the file without validating it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Load parses, validates and commits the file. It is the startup path and
// publishes nothing.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Reload re-reads the file and commits it when it differs from the live
// config. The new config is published only when a hot section changed;
// restart-only edits are committed silently and reported in the Change.
// A rejected file leaves the live config untouched.
func (m *Manager) Reload(ctx context.Context) (Change, error) {
	cfg, err := m.Parse()
	if err != nil {
		return Change{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Change{}, fmt.Errorf("invalid config: %w", err)
	}
	if m.check != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.check(vctx, cfg)
		cancel()
		if err != nil {
			return Change{}, err
		}
	}

	m.mu.Lock()
	ch := SummarizeConfigChange(m.cur, cfg)
	if !ch.Empty() {
		m.cur = cfg
	}
	m.mu.Unlock()

	if len(ch.Hot()) > 0 {
		m.publish(cfg)
	}
	return ch, nil
}

// Subscribe returns a channel that receives every published config. A slow
// subscriber only ever sees the newest ones.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

// publish is the only sender and holds subsMu, so after evicting the oldest
// queued config there is always room for cfg.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
			m.log.Debug("stale config evicted from slow subscriber", logx.Int("queue_cap", cap(ch)))
		default:
		}
		ch <- cfg
	}
}
