// Package systemd speaks the sd_notify protocol so the relay can run as a
// Type=notify unit with a watchdog.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "dolphinbot/pkg/logx"
)

// Notifier sends state updates to systemd. When disabled, or when the
// process was not started by systemd, every call is a no-op.
type Notifier struct {
	enabled bool
	log     logx.Logger
	// notify is daemon.SdNotify; replaced in tests.
	notify func(unsetEnv bool, state string) (bool, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{enabled: enabled, log: log.With(logx.String("comp", "systemd")), notify: daemon.SdNotify}
}

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	ok, err := n.notify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if !ok {
		// NOTIFY_SOCKET unset: not running under systemd.
		n.enabled = false
		n.log.Debug("not running under systemd; notifications off")
	}
}

// Ready reports startup completion along with a status line.
func (n *Notifier) Ready(status string) {
	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

func (n *Notifier) Status(status string) { n.send("STATUS=" + status) }

// Watchdog pets the service watchdog.
func (n *Notifier) Watchdog() { n.send(daemon.SdNotifyWatchdog) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// WatchdogInterval is the configured WatchdogSec, or 0 when the watchdog is
// off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}
