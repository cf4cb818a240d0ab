package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/storage"
	"dolphinbot/internal/transport"
	logx "dolphinbot/pkg/logx"
)

var ErrNoSender = errors.New("notifier has no sender")

const historyMax = 300

// Service delivers payloads to a single destination.
// Deliver blocks until the payload is accepted or every attempt has failed.
//
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     logx.Logger
	sender  transport.Sender
	bus     eventbus.Bus
	journal storage.Journal

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	// logPayload wraps a log line in the destination's message format.
	logPayload func(text string) transport.Payload

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a Service. bus and journal may be nil.
func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, journal storage.Journal) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender:  sender,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		journal: journal,
		sleep:   sleepCtx,
		logPayload: func(text string) transport.Payload {
			return transport.Payload{Kind: transport.KindLog, ContentType: "text/plain", Body: []byte(text)}
		},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Destination names the underlying sender.
func (s *Service) Destination() string {
	if s.sender == nil {
		return ""
	}
	return s.sender.Name()
}

// Deliver sends p, retrying on failure with a fixed delay.
// It returns *DeliveryError once RetryMax+1 attempts have failed, or the
// context error if ctx ends first.
func (s *Service) Deliver(ctx context.Context, p transport.Payload) error {
	if s.sender == nil {
		return ErrNoSender
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	dest := s.sender.Name()
	start := time.Now()
	attempts := cfg.RetryMax + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		actx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := s.sender.Send(actx, p)
		cancel()

		if err == nil {
			took := time.Since(start)
			s.log.Debug("payload delivered",
				logx.String("dest", dest),
				logx.String("kind", string(p.Kind)),
				logx.Int("entries", p.Entries),
				logx.Int("attempt", attempt),
				logx.Duration("took", took),
			)
			s.publish(EventSent, NotificationEvent{Destination: dest, Kind: p.Kind, Entries: p.Entries, Attempt: attempt, Took: took})
			s.record(ctx, p, dest, attempt, took, nil)
			return nil
		}
		lastErr = err

		// Parent cancellation is not a delivery failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.log.Warn("delivery attempt failed",
			logx.String("dest", dest),
			logx.String("kind", string(p.Kind)),
			logx.Int("attempt", attempt),
			logx.Int("of", attempts),
			logx.Err(err),
		)
		s.publish(EventAttemptFailed, NotificationEvent{Destination: dest, Kind: p.Kind, Entries: p.Entries, Attempt: attempt, Error: err.Error()})

		if attempt < attempts {
			if err := s.sleep(ctx, cfg.RetryDelay); err != nil {
				return err
			}
		}
	}

	took := time.Since(start)
	s.log.Error("delivery gave up",
		logx.String("dest", dest),
		logx.String("kind", string(p.Kind)),
		logx.Int("entries", p.Entries),
		logx.Int("attempts", attempts),
		logx.Err(lastErr),
	)
	s.publish(EventFailed, NotificationEvent{Destination: dest, Kind: p.Kind, Entries: p.Entries, Attempt: attempts, Took: took, Error: lastErr.Error()})
	s.record(ctx, p, dest, attempts, took, lastErr)
	return &DeliveryError{Kind: p.Kind, Attempts: attempts, Err: lastErr}
}

// SendLog adapts the service to logx.ChatSink. Log lines are sent once and
// never journaled.
func (s *Service) SendLog(ctx context.Context, text string) error {
	if s.sender == nil {
		return ErrNoSender
	}
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	if !lim.Allow() {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sender.Send(cctx, s.logPayload(text))
}

// SetLogFormat sets how SendLog wraps log lines. Call before the service is
// shared.
func (s *Service) SetLogFormat(fn func(text string) transport.Payload) {
	if fn != nil {
		s.logPayload = fn
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(ctx context.Context, p transport.Payload, dest string, attempts int, took time.Duration, err error) {
	item := HistoryItem{At: time.Now(), Kind: p.Kind, Entries: p.Entries, Attempts: attempts, OK: err == nil}
	if err != nil {
		item.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()

	if s.journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	jerr := s.journal.Record(jctx, storage.Delivery{
		At:          item.At,
		Destination: dest,
		Kind:        string(p.Kind),
		Entries:     p.Entries,
		Attempts:    attempts,
		OK:          item.OK,
		Error:       item.Error,
		Bytes:       len(p.Body),
		TookMS:      took.Milliseconds(),
	})
	if jerr != nil {
		s.log.Warn("journal write failed", logx.Err(jerr))
	}
}

func (s *Service) publish(typ string, ev NotificationEvent) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev.At = now
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
