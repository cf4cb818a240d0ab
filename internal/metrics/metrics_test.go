package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/relay"
	"dolphinbot/internal/transport"
)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", m.String())
	return 0
}

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	now := time.Now()
	events := []eventbus.Event{
		{Type: relay.EventPolled, Time: now, Data: relay.CycleEvent{New: 3, Admitted: 2, Pending: 2}},
		{Type: relay.EventFailed, Time: now, Data: relay.CycleEvent{ErrorKind: "http"}},
		{Type: relay.EventHeld, Time: now, Data: relay.CycleEvent{Held: 2}},
		{Type: relay.EventFlushed, Time: now, Data: relay.CycleEvent{Flushed: 2}},
		{Type: notifier.EventAttemptFailed, Time: now, Data: notifier.NotificationEvent{Kind: transport.KindSummary}},
		{Type: notifier.EventSent, Time: now, Data: notifier.NotificationEvent{Kind: transport.KindSummary, Took: time.Second}},
		{Type: "something.else", Time: now, Data: 42},
	}
	for _, ev := range events {
		m.Observe(ev)
	}

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"polls ok", m.Polls.WithLabelValues("ok"), 1},
		{"polls http", m.Polls.WithLabelValues("http"), 1},
		{"new", m.NewEntries, 3},
		{"admitted", m.Admitted, 2},
		{"held", m.Held, 2},
		{"summaries", m.Summaries, 1},
		{"pending", m.Pending, 2},
		{"sent", m.Deliveries.WithLabelValues("summary", "sent"), 1},
		{"attempts", m.AttemptsFail.WithLabelValues("summary"), 1},
	}
	for _, c := range checks {
		if got := value(t, c.c); got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}
