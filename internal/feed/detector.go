package feed

import (
	"context"
	"time"

	"dolphinbot/internal/activity"
)

// Watermark is the boundary between entries already considered for delivery
// and those that are not. It never moves backwards.
type Watermark struct {
	at time.Time
}

func (w Watermark) At() time.Time { return w.at }

// Admits reports whether an entry updated at t lies past the watermark.
func (w Watermark) Admits(t time.Time) bool { return t.After(w.at) }

func (w *Watermark) advance(t time.Time) {
	if t.After(w.at) {
		w.at = t
	}
}

// Detector turns successive snapshots into the entries that are new since the
// previous one. It is owned by a single poll loop and is not safe for
// concurrent use.
type Detector struct {
	src Source
	wm  Watermark
}

func NewDetector(src Source) *Detector {
	return &Detector{src: src}
}

// Prime fetches the feed once and moves the watermark to its updated time so
// existing history is never replayed. A failure here is fatal for the caller.
func (d *Detector) Prime(ctx context.Context) (Snapshot, error) {
	snap, err := d.src.Fetch(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	d.wm.advance(snap.UpdatedAt)
	return snap, nil
}

// Watermark returns the current boundary.
func (d *Detector) Watermark() Watermark { return d.wm }

// Poll fetches the feed and returns its delta. On error the watermark is left
// untouched.
func (d *Detector) Poll(ctx context.Context) ([]activity.Entry, error) {
	snap, err := d.src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return d.Delta(snap), nil
}

// Delta returns the entries of snap updated after the watermark, in feed
// order, and advances the watermark to snap.UpdatedAt. When the feed's own
// timestamp has not moved past the watermark the entries are not scanned.
// When no entry qualifies the watermark stays where it is, so an entry whose
// own timestamp lags the feed's is still caught on a later poll; the older
// bot always jumped to the feed timestamp and could skip such entries.
func (d *Detector) Delta(snap Snapshot) []activity.Entry {
	if !d.wm.Admits(snap.UpdatedAt) {
		return nil
	}
	var out []activity.Entry
	for _, e := range snap.Entries {
		if d.wm.Admits(e.UpdatedAt) {
			out = append(out, e)
		}
	}
	if len(out) > 0 {
		d.wm.advance(snap.UpdatedAt)
	}
	return out
}
