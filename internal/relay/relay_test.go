package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/feed"
	"dolphinbot/internal/render"
	"dolphinbot/internal/schedule"
	"dolphinbot/internal/transport"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func mk(title, author string, min int) activity.Entry {
	return activity.Entry{
		URL:       "https://op.example.com/work_packages/" + title,
		Title:     title,
		Author:    author,
		UpdatedAt: t0.Add(time.Duration(min) * time.Minute),
		Category:  activity.WorkPackage,
	}
}

func TestFilterAdjacentOnly(t *testing.T) {
	t.Parallel()
	a := mk("A", "ann", 1)
	b := mk("B", "bob", 2)
	f := Filter{}
	var got []string
	for _, e := range []activity.Entry{a, a, b, a} {
		if f.Consider(e) {
			got = append(got, e.Title)
		}
	}
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "A" {
		t.Fatalf("admitted = %v, want [A B A]", got)
	}
	if f.Last() == nil || f.Last().Title != "A" {
		t.Fatalf("last = %+v", f.Last())
	}
}

func TestFilterAllowRepeats(t *testing.T) {
	t.Parallel()
	a := mk("A", "ann", 1)
	f := Filter{AllowRepeats: true}
	if !f.Consider(a) || !f.Consider(a) {
		t.Fatal("repeats should be admitted")
	}
	other := a
	other.Author = "bob"
	if !Admit(other, &a, false) {
		t.Fatal("different author must be admitted")
	}
}

func TestFilterProperty(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		titles := rapid.SliceOf(rapid.SampledFrom([]string{"A", "B", "C"})).Draw(t, "titles")
		f := Filter{}
		var prev string
		for i, title := range titles {
			ok := f.Consider(mk(title, "ann", i))
			want := i == 0 || title != prev
			if ok != want {
				t.Fatalf("entry %d (%s after %s): admitted=%v want %v", i, title, prev, ok, want)
			}
			prev = title
		}
	})
}

func TestSchedulerScenarios(t *testing.T) {
	t.Parallel()

	t.Run("single entry dispatched immediately", func(t *testing.T) {
		s := NewScheduler(2)
		p := s.Step(1, []activity.Entry{mk("a", "x", 1)})
		if len(p.Immediate) != 1 || p.Held != 0 || p.Summary != nil {
			t.Fatalf("plan = %+v", p)
		}
		if s.State() != Idle {
			t.Fatalf("state = %v", s.State())
		}
	})

	t.Run("burst held then flushed on silence", func(t *testing.T) {
		s := NewScheduler(2)
		burst := []activity.Entry{mk("a", "x", 1), mk("b", "x", 2), mk("c", "x", 3)}
		p := s.Step(3, burst)
		if len(p.Immediate) != 0 || p.Held != 3 || s.State() != Holding {
			t.Fatalf("plan = %+v state = %v", p, s.State())
		}
		p = s.Step(0, nil)
		if len(p.Summary) != 3 {
			t.Fatalf("summary = %d entries", len(p.Summary))
		}
		s.Flushed()
		if s.State() != Idle || s.Pending() != 0 {
			t.Fatalf("state after flush = %v pending = %d", s.State(), s.Pending())
		}
	})

	t.Run("holding appends single entry", func(t *testing.T) {
		s := NewScheduler(2)
		s.Step(2, []activity.Entry{mk("a", "x", 1), mk("b", "x", 2)})
		p := s.Step(1, []activity.Entry{mk("c", "x", 3)})
		if len(p.Immediate) != 0 || p.Held != 1 || s.Pending() != 3 || s.State() != Holding {
			t.Fatalf("plan = %+v pending = %d", p, s.Pending())
		}
	})

	t.Run("silent idle cycle does nothing", func(t *testing.T) {
		s := NewScheduler(2)
		if p := s.Step(0, nil); p.Immediate != nil || p.Summary != nil || p.Held != 0 {
			t.Fatalf("plan = %+v", p)
		}
	})

	t.Run("limit below one uses default", func(t *testing.T) {
		s := NewScheduler(0)
		if s.Limit() != DefaultSummaryLimit {
			t.Fatalf("limit = %d", s.Limit())
		}
	})

	t.Run("drop", func(t *testing.T) {
		s := NewScheduler(1)
		s.Step(1, []activity.Entry{mk("a", "x", 1)})
		if n := s.Drop(); n != 1 || s.State() != Idle {
			t.Fatalf("Drop = %d state = %v", n, s.State())
		}
	})
}

// fakes

type scriptDetector struct {
	mu    sync.Mutex
	steps []pollStep
	wm    time.Time
}

type pollStep struct {
	entries []activity.Entry
	err     error
}

func (d *scriptDetector) Poll(context.Context) ([]activity.Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.steps) == 0 {
		return nil, nil
	}
	s := d.steps[0]
	d.steps = d.steps[1:]
	return s.entries, s.err
}

func (d *scriptDetector) Watermark() feed.Watermark { return feed.Watermark{} }

type recorder struct {
	mu   sync.Mutex
	sent []transport.Payload
	fail bool
}

func (r *recorder) Deliver(_ context.Context, p transport.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p)
	if r.fail {
		return errors.New("endpoint down")
	}
	return nil
}

func (r *recorder) kinds() []transport.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]transport.Kind, len(r.sent))
	for i, p := range r.sent {
		out[i] = p.Kind
	}
	return out
}

func newTestRelay(det Detector, out Deliverer, opts ...Option) *Relay {
	rnd := render.NewSlack(activity.NewProject("https://op.example.com", "demo"), render.Options{})
	return New(det, rnd, out, Settings{Poll: schedule.MustParse("1s"), SummaryLimit: 2}, opts...)
}

func TestCycleFlow(t *testing.T) {
	t.Parallel()
	fetchErr := &feed.FetchError{Kind: feed.KindHTTP, Severity: feed.SeverityWarn, StatusCode: 502}
	det := &scriptDetector{steps: []pollStep{
		{entries: []activity.Entry{mk("a", "x", 1)}},                                   // immediate
		{entries: []activity.Entry{mk("b", "x", 2), mk("c", "x", 3), mk("d", "y", 4)}}, // held
		{err: fetchErr}, // failed, no flush
		{entries: []activity.Entry{mk("d", "y", 5)}}, // adjacent duplicate, holding
		{}, // silent -> summary
	}}
	out := &recorder{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	r := newTestRelay(det, out, WithBus(bus))
	ctx := context.Background()

	if err := r.cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if r.Status().State != "holding" || r.Status().Pending != 3 {
		t.Fatalf("status = %+v", r.Status())
	}

	err := r.cycle(ctx)
	var fe *feed.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v", err)
	}
	if got := r.Status(); got.Pending != 3 || got.LastError == "" {
		t.Fatalf("fetch error must not flush: %+v", got)
	}

	if err := r.cycle(ctx); err != nil {
		t.Fatal(err)
	}
	if r.Status().Pending != 3 {
		t.Fatalf("duplicate should not be appended, pending = %d", r.Status().Pending)
	}

	if err := r.cycle(ctx); err != nil {
		t.Fatal(err)
	}
	kinds := out.kinds()
	if len(kinds) != 2 || kinds[0] != transport.KindSingle || kinds[1] != transport.KindSummary {
		t.Fatalf("sent kinds = %v", kinds)
	}
	if out.sent[1].Entries != 3 {
		t.Fatalf("summary entries = %d", out.sent[1].Entries)
	}
	if st := r.Status(); st.State != "idle" || st.Pending != 0 || st.LastError != "" || st.Cycles != 5 {
		t.Fatalf("final status = %+v", st)
	}

	seen := map[string]int{}
	for len(ch) > 0 {
		seen[(<-ch).Type]++
	}
	if seen[EventFailed] != 1 || seen[EventHeld] != 1 || seen[EventFlushed] != 1 || seen[EventPolled] != 4 {
		t.Fatalf("events = %v", seen)
	}
}

func TestDeliveryFailureStillAdvances(t *testing.T) {
	t.Parallel()
	det := &scriptDetector{steps: []pollStep{
		{entries: []activity.Entry{mk("a", "x", 1), mk("b", "x", 2)}},
		{},
		{entries: []activity.Entry{mk("b", "x", 3)}},
	}}
	out := &recorder{fail: true}
	r := newTestRelay(det, out)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.cycle(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// The dropped summary still clears the batch and the last entry still
	// counts for duplicate suppression.
	kinds := out.kinds()
	if len(kinds) != 1 || kinds[0] != transport.KindSummary {
		t.Fatalf("sent kinds = %v", kinds)
	}
	if r.Status().Pending != 0 {
		t.Fatalf("pending = %d", r.Status().Pending)
	}
}

func TestApplySettings(t *testing.T) {
	t.Parallel()
	det := &scriptDetector{steps: []pollStep{
		{entries: []activity.Entry{mk("a", "x", 1), mk("b", "y", 2)}},
	}}
	out := &recorder{}
	r := newTestRelay(det, out)
	r.Apply(Settings{Poll: schedule.MustParse("5s"), SummaryLimit: 3})
	if err := r.cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := out.kinds(); len(got) != 2 {
		t.Fatalf("with limit 3 both entries go out individually, got %v", got)
	}
	if r.Settings().SummaryLimit != 3 {
		t.Fatalf("settings = %+v", r.Settings())
	}
}

func TestRunStopsAndDropsPending(t *testing.T) {
	t.Parallel()
	det := &scriptDetector{steps: []pollStep{
		{entries: []activity.Entry{mk("a", "x", 1), mk("b", "x", 2), mk("c", "x", 3)}},
	}}
	beats := make(chan Status, 4)
	r := newTestRelay(det, &recorder{}, WithHeartbeat(func(s Status) {
		select {
		case beats <- s:
		default:
		}
	}))
	r.Apply(Settings{Poll: schedule.MustParse("1h"), SummaryLimit: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case s := <-beats:
		if s.Pending != 3 {
			t.Fatalf("pending = %d", s.Pending)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if r.sched.Pending() != 0 {
		t.Fatal("pending batch should be dropped")
	}
}
