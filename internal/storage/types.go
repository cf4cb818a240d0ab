package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the delivery journal.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Delivery records the outcome of one notification.
// Keep it compact and schema-stable.
type Delivery struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	Destination string    `json:"destination"`
	Kind        string    `json:"kind"`
	Entries     int       `json:"entries"`
	Attempts    int       `json:"attempts"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	Bytes       int       `json:"bytes"`
	TookMS      int64     `json:"took_ms"`
}
