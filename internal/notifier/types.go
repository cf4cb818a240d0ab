package notifier

import (
	"fmt"
	"time"

	"dolphinbot/internal/transport"
)

// Config controls delivery retries and pacing.
type Config struct {
	// RetryMax is the number of extra attempts after the first one.
	RetryMax   int
	RetryDelay time.Duration
	RatePerSec int
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// Defaults used when Config fields are zero.
const (
	DefaultRetryMax   = 5
	DefaultRetryDelay = 5 * time.Second
	DefaultRatePerSec = 1
	DefaultTimeout    = 15 * time.Second
)

type HistoryItem struct {
	At       time.Time
	Kind     transport.Kind
	Entries  int
	Attempts int
	OK       bool
	Error    string
}

// DeliveryError is returned once every attempt for a payload has failed.
type DeliveryError struct {
	Kind     transport.Kind
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: gave up after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Event types published on the bus.
const (
	EventSent          = "notifier.sent"
	EventAttemptFailed = "notifier.attempt"
	EventFailed        = "notifier.failed"
)

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	Destination string         `json:"destination"`
	Kind        transport.Kind `json:"kind"`
	Entries     int            `json:"entries"`
	Attempt     int            `json:"attempt"`
	Took        time.Duration  `json:"took"`
	At          time.Time      `json:"at"`
	Error       string         `json:"error,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
