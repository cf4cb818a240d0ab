package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	logx "dolphinbot/pkg/logx"
)

// Journal is an append-only record of deliveries. Nothing in the relay reads
// it back.
type Journal interface {
	Record(ctx context.Context, d Delivery) error
	Close() error
}

// Open initializes the configured journal.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Journal, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// stamp fills the generated fields of d.
func stamp(d Delivery) Delivery {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return d
}
