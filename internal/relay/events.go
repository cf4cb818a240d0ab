package relay

import "time"

// Event types published on the bus.
const (
	EventPolled  = "feed.polled"
	EventFailed  = "feed.failed"
	EventHeld    = "relay.held"
	EventFlushed = "relay.flushed"
)

// CycleEvent describes one polling cycle outcome.
type CycleEvent struct {
	New       int           `json:"new"`
	Admitted  int           `json:"admitted"`
	Held      int           `json:"held,omitempty"`
	Pending   int           `json:"pending"`
	Flushed   int           `json:"flushed,omitempty"`
	Took      time.Duration `json:"took"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}
