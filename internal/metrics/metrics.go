// Package metrics exposes relay and delivery counters to Prometheus. It is
// fed exclusively from the event bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/relay"
)

const Namespace = "dolphinbot"

type Metrics struct {
	Polls         *prometheus.CounterVec
	PollDuration  prometheus.Histogram
	NewEntries    prometheus.Counter
	Admitted      prometheus.Counter
	Held          prometheus.Counter
	Summaries     prometheus.Counter
	Pending       prometheus.Gauge
	Deliveries    *prometheus.CounterVec
	AttemptsFail  *prometheus.CounterVec
	DeliveryTime  *prometheus.HistogramVec
	LastSuccessTS prometheus.Gauge
}

// New creates and registers all metrics on reg (the default registerer when
// nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "feed", Name: "polls_total",
			Help: "Feed polls by result (ok, http, network, parse, unexpected).",
		}, []string{"result"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "feed", Name: "poll_duration_seconds",
			Help:    "Duration of one polling cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		NewEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "relay", Name: "new_entries_total",
			Help: "Entries found past the watermark.",
		}),
		Admitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "relay", Name: "admitted_entries_total",
			Help: "Entries that passed the adjacent duplicate filter.",
		}),
		Held: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "relay", Name: "held_entries_total",
			Help: "Entries appended to the pending summary batch.",
		}),
		Summaries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "relay", Name: "summaries_total",
			Help: "Summary batches flushed.",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "relay", Name: "pending_entries",
			Help: "Entries currently held for the next summary.",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "notifier", Name: "deliveries_total",
			Help: "Deliveries by payload kind and result (sent, dropped).",
		}, []string{"kind", "result"}),
		AttemptsFail: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "notifier", Name: "failed_attempts_total",
			Help: "Failed delivery attempts, retried or not.",
		}, []string{"kind"}),
		DeliveryTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "notifier", Name: "delivery_duration_seconds",
			Help:    "Time from first attempt to outcome.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		LastSuccessTS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "feed", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll.",
		}),
	}
}

// Observe updates metrics from one bus event. Unknown events are ignored.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case relay.CycleEvent:
		switch ev.Type {
		case relay.EventPolled:
			m.Polls.WithLabelValues("ok").Inc()
			m.PollDuration.Observe(d.Took.Seconds())
			m.NewEntries.Add(float64(d.New))
			m.Admitted.Add(float64(d.Admitted))
			m.Pending.Set(float64(d.Pending))
			m.LastSuccessTS.Set(float64(ev.Time.Unix()))
		case relay.EventFailed:
			m.Polls.WithLabelValues(d.ErrorKind).Inc()
			m.PollDuration.Observe(d.Took.Seconds())
		case relay.EventHeld:
			m.Held.Add(float64(d.Held))
		case relay.EventFlushed:
			m.Summaries.Inc()
		}
	case notifier.NotificationEvent:
		kind := string(d.Kind)
		switch ev.Type {
		case notifier.EventSent:
			m.Deliveries.WithLabelValues(kind, "sent").Inc()
			m.DeliveryTime.WithLabelValues(kind).Observe(d.Took.Seconds())
		case notifier.EventFailed:
			m.Deliveries.WithLabelValues(kind, "dropped").Inc()
			m.DeliveryTime.WithLabelValues(kind).Observe(d.Took.Seconds())
		case notifier.EventAttemptFailed:
			m.AttemptsFail.WithLabelValues(kind).Inc()
		}
	}
}

// Run consumes bus events until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}
