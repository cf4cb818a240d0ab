package relay

import "dolphinbot/internal/activity"

// Admit reports whether e may be delivered given the entry processed just
// before it. Only an immediately adjacent repeat (same title and author) is
// suppressed, and only when repeats are not allowed.
func Admit(e activity.Entry, last *activity.Entry, allowRepeats bool) bool {
	if allowRepeats || last == nil {
		return true
	}
	return !e.SameAs(*last)
}

// Filter remembers the last processed entry across polling cycles.
type Filter struct {
	AllowRepeats bool
	last         *activity.Entry
}

// Consider applies Admit and then records e as the last processed entry,
// whatever the outcome.
func (f *Filter) Consider(e activity.Entry) bool {
	ok := Admit(e, f.last, f.AllowRepeats)
	cp := e
	f.last = &cp
	return ok
}

// Last returns the last processed entry, or nil.
func (f *Filter) Last() *activity.Entry { return f.last }
