package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dolphinbot/internal/config"
	"dolphinbot/internal/eventbus"
	"dolphinbot/internal/feed"
	"dolphinbot/internal/metrics"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/observability/ops"
	"dolphinbot/internal/platform/systemd"
	"dolphinbot/internal/relay"
	"dolphinbot/internal/render"
	"dolphinbot/internal/runtime/supervisor"
	"dolphinbot/internal/storage"
	logx "dolphinbot/pkg/logx"
)

// App owns every long-lived component of the relay process.
type App struct {
	version string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	journal storage.Journal

	det   *feed.Detector
	rnd   render.Renderer
	notif *notifier.Service
	relay *relay.Relay

	reg     *prometheus.Registry
	metrics *metrics.Metrics
	ops     *ops.Server
	sd      *systemd.Notifier
}

// New loads the config at cfgPath and builds the components. Nothing touches
// the network until Start.
func New(cfgPath, version string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	alog := log.With(logx.String("comp", "app"))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	settings, err := mapRelaySettings(cfg)
	if err != nil {
		return nil, err
	}
	jcfg, err := mapJournalConfig(cfg)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	journal, err := storage.Open(jcfg, log.With(logx.String("comp", "journal")))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if journal != nil {
		alog.Info("delivery journal enabled", logx.String("driver", jcfg.Driver))
	}

	sender, err := newSender(cfg, ncfg.Timeout)
	if err != nil {
		return nil, err
	}
	rnd, err := render.New(cfg.DestinationKind(), projectOf(cfg), mapRenderOptions(cfg, version))
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, sender, log, bus, journal)
	notif.SetLogFormat(rnd.Log)
	logSvc.SetChatSink(notif)

	src, err := newSource(cfg, version)
	if err != nil {
		return nil, err
	}
	det := feed.NewDetector(src)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		version: version,
		cfgm:    cfgm,
		log:     alog,
		logs:    logSvc,
		bus:     bus,
		journal: journal,
		det:     det,
		rnd:     rnd,
		notif:   notif,
		reg:     reg,
		metrics: metrics.New(reg),
		sd:      systemd.New(cfg.Systemd.Notify, log),
	}
	a.relay = relay.New(det, rnd, notif, settings,
		relay.WithLogger(log),
		relay.WithBus(bus),
		relay.WithHeartbeat(a.heartbeat),
	)
	a.ops = ops.New(mapOpsConfig(cfg), reg, a.health, log.With(logx.String("comp", "ops")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start primes the watermark and launches the poll loop. A feed that cannot
// be fetched or parsed at this point is fatal.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	project := projectOf(cfg)

	snap, err := a.det.Prime(ctx)
	if err != nil {
		var fe *feed.FetchError
		if errors.As(err, &fe) {
			a.log.Error("initial feed fetch failed", logx.String("kind", string(fe.Kind)), logx.Int("status", fe.StatusCode), logx.Err(fe.Cause))
		}
		return fmt.Errorf("prime feed: %w", err)
	}
	a.log.Info("watching project",
		logx.String("project", project.ID),
		logx.String("activity", project.ActivityURL()),
		logx.String("destination", a.notif.Destination()),
		logx.Int("entries", len(snap.Entries)),
		logx.Time("watermark", a.det.Watermark().At()),
	)

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := mapNotifierConfig(c); err != nil {
			return err
		}
		_, err := mapRelaySettings(c)
		return err
	})

	if err := a.ops.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("ops: %w", err)
	}

	a.sup.Go0("metrics", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go("relay", a.relay.Run)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if wd := systemd.WatchdogInterval(); wd > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(wd / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					a.sd.Watchdog()
				}
			}
		})
	}

	a.sd.Ready("watching project " + project.ID)
	a.log.Info("app started", logx.String("version", a.version))
	return nil
}

func (a *App) heartbeat(s relay.Status) {
	a.sd.Watchdog()
	if s.LastError != "" {
		a.sd.Status("feed error: " + s.LastError)
		return
	}
	a.sd.Status(fmt.Sprintf("%s, %d pending, last poll %s", s.State, s.Pending, s.LastPoll.Format(time.TimeOnly)))
}

type healthReport struct {
	Version   string              `json:"version"`
	Relay     relay.Status        `json:"relay"`
	Counters  supervisor.Counters `json:"goroutines"`
	Delivered int                 `json:"deliveries_recent"`
	Dropped   uint64              `json:"events_dropped"`
}

// health is unhealthy while the latest poll failed.
func (a *App) health() (any, bool) {
	st := a.relay.Status()
	r := healthReport{Version: a.version, Relay: st, Delivered: len(a.notif.Snapshot()), Dropped: a.bus.Dropped()}
	if a.sup != nil {
		r.Counters = a.sup.Counters()
	}
	return r, st.LastError == ""
}

// reloadLoop fans hot-reloaded config out to the components that support it.
func (a *App) reloadLoop(c context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Debug("config change summary", fields...)

	if ch.Has("logging") {
		a.logs.Apply(mapLogConfig(newCfg))
	}
	if ch.Has("relay") {
		if s, err := mapRelaySettings(newCfg); err != nil {
			a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
		} else {
			a.relay.Apply(s)
		}
	}
	if ch.Has("render") {
		a.rnd.Apply(mapRenderOptions(newCfg, a.version))
	}
	if ch.Has("notifier") {
		if nc, err := mapNotifierConfig(newCfg); err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(nc)
		}
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(ch.Sections, ",")))
}

// Stop cancels the loops and releases resources, each step bounded so one
// component can't stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	defer func() {
		if a.logs != nil {
			_ = a.logs.Close()
		}
	}()
	if a.sup == nil {
		if a.journal != nil {
			_ = a.journal.Close()
		}
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "supervisor", 5*time.Second, a.sup.Wait)
	a.step(ctx, "journal", time.Second, func(context.Context) error {
		if a.journal != nil {
			return a.journal.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return nil
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
