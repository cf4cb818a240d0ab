package app

import (
	"fmt"
	"strings"
	"time"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/config"
	"dolphinbot/internal/feed"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/observability/ops"
	"dolphinbot/internal/relay"
	"dolphinbot/internal/render"
	"dolphinbot/internal/storage"
	"dolphinbot/internal/transport"
	"dolphinbot/internal/transport/telegram"
	"dolphinbot/internal/transport/webhook"
	logx "dolphinbot/pkg/logx"
)

func projectOf(cfg *config.Config) activity.Project {
	return activity.NewProject(cfg.OpenProject.BaseURL, cfg.OpenProject.ProjectID.String())
}

func userAgent(cfg *config.Config, version string) string {
	if ua := strings.TrimSpace(cfg.Feed.UserAgent); ua != "" {
		return ua
	}
	if version == "" {
		version = "dev"
	}
	return "dolphinbot/" + version
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	retryMax := notifier.DefaultRetryMax
	if nc.RetryMax != nil {
		retryMax = *nc.RetryMax
	}
	delay, err := config.Duration("notifier.retry_delay", nc.RetryDelay, notifier.DefaultRetryDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	timeout, err := config.Duration("notifier.timeout", nc.Timeout, notifier.DefaultTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RetryMax:   retryMax,
		RetryDelay: delay,
		RatePerSec: nc.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapRenderOptions(cfg *config.Config, version string) render.Options {
	rc := cfg.Render
	highlight := true
	if rc.HighlightKeywords != nil {
		highlight = *rc.HighlightKeywords
	}
	return render.Options{
		Username:    rc.Username,
		IconEmoji:   rc.IconEmoji,
		MaxLinks:    rc.MaxLinks,
		Highlight:   highlight,
		ShowExcerpt: rc.ShowExcerpt,
		Version:     version,
	}
}

func mapRelaySettings(cfg *config.Config) (relay.Settings, error) {
	spec, err := cfg.PollSpec()
	if err != nil {
		return relay.Settings{}, fmt.Errorf("relay.poll: %w", err)
	}
	return relay.Settings{
		Poll:         spec,
		AllowRepeats: cfg.Relay.AllowRepeats,
		SummaryLimit: cfg.Relay.SmartSummaryLimit,
	}, nil
}

func mapJournalConfig(cfg *config.Config) (storage.Config, error) {
	jc := cfg.Journal
	busy, err := config.Duration("journal.busy_timeout", jc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: jc.Driver, Path: jc.Path, BusyTimeout: busy}, nil
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Pprof:         oc.Pprof,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		ReadTimeout:   10 * time.Second,
		IdleTimeout:   60 * time.Second,
	}
}

// newSource builds the authenticated Atom source for the configured project.
func newSource(cfg *config.Config, version string) (*feed.HTTPSource, error) {
	filters, err := cfg.Filters()
	if err != nil {
		return nil, err
	}
	timeout, err := config.Duration("feed.timeout", cfg.Feed.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	url := projectOf(cfg).AtomURL(cfg.OpenProject.AtomKey, filters...)
	return feed.NewHTTPSource(url, userAgent(cfg, version), timeout), nil
}

func newSender(cfg *config.Config, timeout time.Duration) (transport.Sender, error) {
	switch cfg.DestinationKind() {
	case "slack":
		return webhook.New(cfg.Destination.WebhookURL, timeout)
	case "telegram":
		tc := cfg.Destination.Telegram
		return telegram.New(telegram.Config{
			Token:   tc.Token,
			Target:  transport.ChatTarget{ChatID: tc.ChatID, ThreadID: tc.ThreadID},
			APIURL:  tc.APIURL,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("destination.kind: unknown kind %q", cfg.Destination.Kind)
	}
}
