// Package transport defines what a rendered notification looks like on the
// wire and the interface destinations implement to receive it.
package transport

import (
	"context"
	"fmt"
)

// Kind tags a payload with the notification it carries.
type Kind string

const (
	KindSingle  Kind = "single"
	KindSummary Kind = "summary"
	KindLog     Kind = "log"
)

// Payload is an opaque, destination-specific message body. Senders forward
// Body unchanged; Entries and Kind are bookkeeping for logs and metrics.
type Payload struct {
	Kind        Kind
	ContentType string
	Body        []byte
	Entries     int
}

// Sender delivers one payload with a single attempt. Retrying is the
// caller's concern.
type Sender interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// ChatTarget addresses a Telegram chat, optionally a forum topic.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// StatusError is returned when the destination answered with a non-success
// HTTP status.
type StatusError struct {
	Destination string
	Code        int
	Body        string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Destination, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Destination, e.Code)
}
