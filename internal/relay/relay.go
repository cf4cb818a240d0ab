package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/feed"
	"dolphinbot/internal/render"
	"dolphinbot/internal/schedule"
	"dolphinbot/internal/transport"
	logx "dolphinbot/pkg/logx"
)

// Detector yields the entries that are new since the previous poll.
type Detector interface {
	Poll(ctx context.Context) ([]activity.Entry, error)
	Watermark() feed.Watermark
}

// Deliverer sends one payload, retrying in-band. A returned error means the
// payload was dropped.
type Deliverer interface {
	Deliver(ctx context.Context, p transport.Payload) error
}

// Settings are the hot-reloadable relay options.
type Settings struct {
	Poll         schedule.Spec
	AllowRepeats bool
	SummaryLimit int
}

// Status is a point-in-time view of the loop for health endpoints.
type Status struct {
	Cycles    uint64    `json:"cycles"`
	LastPoll  time.Time `json:"last_poll"`
	LastOK    time.Time `json:"last_ok"`
	LastError string    `json:"last_error,omitempty"`
	LastNew   int       `json:"last_new"`
	State     string    `json:"state"`
	Pending   int       `json:"pending"`
	Watermark time.Time `json:"watermark"`
	NextPoll  time.Time `json:"next_poll"`
}

// Option configures a Relay.
type Option func(*Relay)

func WithLogger(l logx.Logger) Option { return func(r *Relay) { r.log = l } }
func WithBus(b eventbus.Bus) Option   { return func(r *Relay) { r.bus = b } }

// WithHeartbeat registers fn to run after every cycle.
func WithHeartbeat(fn func(Status)) Option { return func(r *Relay) { r.heartbeat = fn } }

// Relay is the poll loop. It owns the duplicate filter and the summary
// scheduler; only Run touches them.
type Relay struct {
	det Detector
	rnd render.Renderer
	out Deliverer

	log       logx.Logger
	bus       eventbus.Bus
	heartbeat func(Status)

	settings atomic.Pointer[Settings]

	filter Filter
	sched  *Scheduler

	mu     sync.Mutex
	status Status
}

func New(det Detector, rnd render.Renderer, out Deliverer, s Settings, opts ...Option) *Relay {
	r := &Relay{
		det:   det,
		rnd:   rnd,
		out:   out,
		sched: NewScheduler(s.SummaryLimit),
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "relay"))
	r.Apply(s)
	r.status.State = Idle.String()
	return r
}

// Apply swaps the settings used from the next cycle on.
func (r *Relay) Apply(s Settings) {
	if s.SummaryLimit < 1 {
		s.SummaryLimit = DefaultSummaryLimit
	}
	r.settings.Store(&s)
}

func (r *Relay) Settings() Settings { return *r.settings.Load() }

func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run polls until ctx is done. A held batch is dropped on exit.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started",
		logx.String("poll", r.Settings().Poll.String()),
		logx.Time("watermark", r.det.Watermark().At()),
	)
	for ctx.Err() == nil {
		_ = r.cycle(ctx)
		if ctx.Err() != nil {
			break
		}

		next := r.Settings().Poll.Next(time.Now())
		r.mu.Lock()
		r.status.NextPoll = next
		r.mu.Unlock()

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}

	if n := r.sched.Drop(); n > 0 {
		r.log.Warn("pending summary dropped on shutdown", logx.Int("entries", n))
	}
	r.log.Info("relay stopped")
	return nil
}

// cycle runs one poll: detect, filter, schedule, then render and deliver.
func (r *Relay) cycle(ctx context.Context) error {
	st := r.Settings()
	r.filter.AllowRepeats = st.AllowRepeats
	r.sched.SetLimit(st.SummaryLimit)

	start := time.Now()
	entries, err := r.det.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.pollFailed(err, start)
		return err
	}

	admitted := make([]activity.Entry, 0, len(entries))
	for _, e := range entries {
		if r.filter.Consider(e) {
			admitted = append(admitted, e)
			continue
		}
		r.log.Debug("adjacent duplicate suppressed", logx.String("title", e.Title), logx.String("author", e.Author))
	}

	plan := r.sched.Step(len(entries), admitted)
	ev := CycleEvent{New: len(entries), Admitted: len(admitted), Held: plan.Held}

	for _, e := range plan.Immediate {
		r.dispatch(ctx, e)
	}
	if plan.Held > 0 {
		r.log.Info("holding entries for summary", logx.Int("held", plan.Held), logx.Int("pending", r.sched.Pending()))
		ev.Pending = r.sched.Pending()
		r.publish(EventHeld, ev)
	}
	if len(plan.Summary) > 0 {
		r.flush(ctx, plan.Summary)
		ev.Flushed = len(plan.Summary)
	}

	ev.Pending = r.sched.Pending()
	ev.Took = time.Since(start)
	r.publish(EventPolled, ev)
	if len(entries) > 0 {
		r.log.Debug("poll done", logx.Int("new", len(entries)), logx.Int("admitted", len(admitted)), logx.Duration("took", ev.Took))
	}

	r.mu.Lock()
	r.status.Cycles++
	r.status.LastPoll = start
	r.status.LastOK = start
	r.status.LastError = ""
	r.status.LastNew = len(entries)
	r.status.State = r.sched.State().String()
	r.status.Pending = r.sched.Pending()
	r.status.Watermark = r.det.Watermark().At()
	s := r.status
	r.mu.Unlock()
	r.beat(s)
	return nil
}

func (r *Relay) dispatch(ctx context.Context, e activity.Entry) {
	p, err := r.rnd.Single(e)
	if err != nil {
		r.log.Error("render single failed", logx.String("url", e.URL), logx.Err(err))
		return
	}
	if err := r.out.Deliver(ctx, p); err != nil {
		// Dropped; the notifier already logged the attempts.
		r.log.Debug("single update dropped", logx.String("url", e.URL), logx.Err(err))
	}
}

func (r *Relay) flush(ctx context.Context, batch []activity.Entry) {
	p, err := r.rnd.Summary(batch)
	if err != nil {
		r.log.Error("render summary failed", logx.Int("entries", len(batch)), logx.Err(err))
		return
	}
	r.sched.Flushed()
	r.log.Info("flushing summary", logx.Int("entries", len(batch)))
	r.publish(EventFlushed, CycleEvent{Flushed: len(batch)})
	if err := r.out.Deliver(ctx, p); err != nil {
		r.log.Debug("summary dropped", logx.Int("entries", len(batch)), logx.Err(err))
	}
}

func (r *Relay) pollFailed(err error, start time.Time) {
	ev := CycleEvent{Error: err.Error(), Took: time.Since(start), Pending: r.sched.Pending()}
	var fe *feed.FetchError
	if errors.As(err, &fe) {
		ev.ErrorKind = string(fe.Kind)
		if fe.Severity == feed.SeverityWarn {
			r.log.Warn("feed fetch failed", logx.String("kind", string(fe.Kind)), logx.Int("status", fe.StatusCode), logx.Err(fe.Cause))
		} else {
			r.log.Error("feed fetch failed", logx.String("kind", string(fe.Kind)), logx.Err(fe.Cause))
		}
	} else {
		ev.ErrorKind = string(feed.KindUnexpected)
		r.log.Error("feed fetch failed", logx.Err(err))
	}
	r.publish(EventFailed, ev)

	r.mu.Lock()
	r.status.Cycles++
	r.status.LastPoll = start
	r.status.LastError = err.Error()
	r.status.LastNew = 0
	s := r.status
	r.mu.Unlock()
	r.beat(s)
}

func (r *Relay) beat(s Status) {
	if r.heartbeat != nil {
		r.heartbeat(s)
	}
}

func (r *Relay) publish(typ string, ev CycleEvent) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
