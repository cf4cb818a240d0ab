package app

import (
	"context"
	"fmt"
	"time"

	"dolphinbot/internal/config"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/render"
	"dolphinbot/internal/transport"
	logx "dolphinbot/pkg/logx"
)

// CheckOptions controls a one-shot dry run.
type CheckOptions struct {
	// Latest is how many feed entries go into the sample summary.
	Latest int
	// Send delivers the sample summary instead of only rendering it.
	Send bool
}

// CheckReport is what a dry run found.
type CheckReport struct {
	Activity    string
	FeedUpdated time.Time
	Entries     int
	Stats       render.Stats
	Payload     transport.Payload
	Sent        bool
}

// Check loads the config, fetches the feed once and renders a summary of its
// latest entries. Nothing is sent unless opts.Send is set.
func Check(ctx context.Context, cfgPath, version string, opts CheckOptions) (CheckReport, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return CheckReport{}, err
	}
	if opts.Latest <= 0 {
		opts.Latest = 10
	}
	project := projectOf(cfg)

	src, err := newSource(cfg, version)
	if err != nil {
		return CheckReport{}, err
	}
	snap, err := src.Fetch(ctx)
	if err != nil {
		return CheckReport{}, fmt.Errorf("fetch feed: %w", err)
	}

	rep := CheckReport{
		Activity:    project.ActivityURL(),
		FeedUpdated: snap.UpdatedAt,
		Entries:     len(snap.Entries),
	}
	if len(snap.Entries) == 0 {
		return rep, nil
	}
	sample := snap.Entries[:min(opts.Latest, len(snap.Entries))]

	ropts := mapRenderOptions(cfg, version)
	rnd, err := render.New(cfg.DestinationKind(), project, ropts)
	if err != nil {
		return rep, err
	}
	if ropts.MaxLinks <= 0 {
		ropts.MaxLinks = render.DefaultMaxLinks
	}
	rep.Stats = render.Summarize(sample, ropts.MaxLinks)
	if rep.Payload, err = rnd.Summary(sample); err != nil {
		return rep, err
	}
	if !opts.Send {
		return rep, nil
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return rep, err
	}
	sender, err := newSender(cfg, ncfg.Timeout)
	if err != nil {
		return rep, err
	}
	n := notifier.New(ncfg, sender, logx.NewConsole(cfg.Logging.Level), nil, nil)
	if err := n.Deliver(ctx, rep.Payload); err != nil {
		return rep, err
	}
	rep.Sent = true
	return rep, nil
}
