package config

import (
	"reflect"
	"slices"
	"strings"

	logx "dolphinbot/pkg/logx"
)

// Change is the outcome of comparing two configs.
type Change struct {
	// Sections lists every changed top-level section.
	Sections []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	// Attrs are safe structured fields for logging (never secrets).
	Attrs []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// Has reports whether section changed.
func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Hot returns the changed sections that apply without a restart.
func (c Change) Hot() []string {
	var out []string
	for _, s := range c.Sections {
		if !slices.Contains(c.Restart, s) {
			out = append(out, s)
		}
	}
	return out
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.Restart = append(ch.Restart, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	// OpenProject (never log keys)
	o, n := oldCfg.OpenProject, newCfg.OpenProject
	if strings.TrimSpace(o.BaseURL) != strings.TrimSpace(n.BaseURL) ||
		o.ProjectID != n.ProjectID ||
		o.AtomKey != n.AtomKey ||
		o.APIKey != n.APIKey ||
		!reflect.DeepEqual(o.Filters, n.Filters) {
		mark("openproject", true,
			logx.String("openproject.base_url", strings.TrimSpace(n.BaseURL)),
			logx.String("openproject.project_id", n.ProjectID.String()),
			logx.Bool("openproject.atom_key_changed", o.AtomKey != n.AtomKey),
			logx.Int("openproject.filters", len(n.Filters)),
		)
	}

	if oldCfg.Feed != newCfg.Feed {
		mark("feed", true,
			logx.String("feed.timeout", newCfg.Feed.Timeout),
			logx.String("feed.user_agent", newCfg.Feed.UserAgent),
		)
	}

	if oldCfg.Relay != newCfg.Relay {
		mark("relay", false,
			logx.String("relay.poll", newCfg.Relay.Poll.String()),
			logx.Bool("relay.allow_repeats", newCfg.Relay.AllowRepeats),
			logx.Int("relay.smart_summary_limit", newCfg.Relay.SmartSummaryLimit),
		)
	}

	if !reflect.DeepEqual(oldCfg.Render, newCfg.Render) {
		mark("render", false,
			logx.Int("render.max_links", newCfg.Render.MaxLinks),
			logx.Bool("render.show_excerpt", newCfg.Render.ShowExcerpt),
		)
	}

	// Destination (never log webhook URL or token)
	od, nd := oldCfg.Destination, newCfg.Destination
	if od != nd {
		mark("destination", true,
			logx.String("destination.kind", newCfg.DestinationKind()),
			logx.Bool("destination.webhook_changed", od.WebhookURL != nd.WebhookURL),
			logx.Bool("destination.token_changed", od.Telegram.Token != nd.Telegram.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		retry := -1
		if newCfg.Notifier.RetryMax != nil {
			retry = *newCfg.Notifier.RetryMax
		}
		mark("notifier", false,
			logx.Int("notifier.retry_max", retry),
			logx.String("notifier.retry_delay", newCfg.Notifier.RetryDelay),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	// Ops (never log token)
	if oldCfg.Ops != newCfg.Ops {
		mark("ops", true,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}

	if oldCfg.Journal != newCfg.Journal {
		mark("journal", true, logx.String("journal.driver", newCfg.Journal.Driver))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", true, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}
	return ch
}
