package relay

import "dolphinbot/internal/activity"

// State of the summary scheduler.
type State int

const (
	Idle State = iota
	Holding
)

func (s State) String() string {
	if s == Holding {
		return "holding"
	}
	return "idle"
}

// DefaultSummaryLimit is the number of new entries in one cycle that starts
// holding instead of dispatching.
const DefaultSummaryLimit = 2

// Plan is what one polling cycle should do.
type Plan struct {
	// Immediate entries are sent one message each, in order.
	Immediate []activity.Entry
	// Held is how many entries were appended to the pending batch.
	Held int
	// Summary is the pending batch to render as one message. Call Flushed
	// once it has been rendered.
	Summary []activity.Entry
}

// Scheduler decides per cycle whether entries go out immediately, are held
// back, or are flushed as a summary after a quiet cycle.
type Scheduler struct {
	limit   int
	pending []activity.Entry
}

func NewScheduler(limit int) *Scheduler {
	s := &Scheduler{}
	s.SetLimit(limit)
	return s
}

// SetLimit changes the smart summary trigger. Values below 1 use the default.
func (s *Scheduler) SetLimit(limit int) {
	if limit < 1 {
		limit = DefaultSummaryLimit
	}
	s.limit = limit
}

func (s *Scheduler) Limit() int { return s.limit }

func (s *Scheduler) State() State {
	if len(s.pending) > 0 {
		return Holding
	}
	return Idle
}

// Pending returns how many entries are held back.
func (s *Scheduler) Pending() int { return len(s.pending) }

// Step advances the state machine by one cycle. newCount is the size of the
// cycle's delta before duplicate filtering; admitted are the entries that
// passed the filter, in feed order.
func (s *Scheduler) Step(newCount int, admitted []activity.Entry) Plan {
	if newCount == 0 {
		if len(s.pending) == 0 {
			return Plan{}
		}
		return Plan{Summary: append([]activity.Entry(nil), s.pending...)}
	}
	if len(s.pending) == 0 && newCount < s.limit {
		return Plan{Immediate: admitted}
	}
	s.pending = append(s.pending, admitted...)
	return Plan{Held: len(admitted)}
}

// Flushed clears the pending batch after its summary was rendered.
func (s *Scheduler) Flushed() { s.pending = nil }

// Drop discards the pending batch and returns how many entries it held.
func (s *Scheduler) Drop() int {
	n := len(s.pending)
	s.pending = nil
	return n
}
