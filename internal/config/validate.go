package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/schedule"
)

// Environment variables that override secrets from the file.
const (
	EnvWebhookURL    = "DOLPHIN_WEBHOOK_URL"
	EnvAtomKey       = "DOLPHIN_ATOM_KEY"
	EnvAPIKey        = "DOLPHIN_API_KEY"
	EnvTelegramToken = "DOLPHIN_TELEGRAM_TOKEN"
)

// DefaultPoll is the historical check interval in seconds.
const DefaultPoll = "90"

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Destination.WebhookURL, EnvWebhookURL)
	set(&cfg.OpenProject.AtomKey, EnvAtomKey)
	set(&cfg.OpenProject.APIKey, EnvAPIKey)
	set(&cfg.Destination.Telegram.Token, EnvTelegramToken)
}

// Filters returns the configured categories, or every category when none
// are set.
func (c *Config) Filters() ([]activity.Category, error) {
	if len(c.OpenProject.Filters) == 0 {
		return append([]activity.Category(nil), activity.Categories...), nil
	}
	out := make([]activity.Category, 0, len(c.OpenProject.Filters))
	for _, f := range c.OpenProject.Filters {
		cat, err := activity.ParseCategory(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

// PollSpec parses relay.poll, defaulting to DefaultPoll.
func (c *Config) PollSpec() (schedule.Spec, error) {
	raw := strings.TrimSpace(c.Relay.Poll.String())
	if raw == "" {
		raw = DefaultPoll
	}
	return schedule.Parse(raw)
}

// DestinationKind is the normalized destination kind.
func (c *Config) DestinationKind() string {
	k := strings.ToLower(strings.TrimSpace(c.Destination.Kind))
	if k == "" || k == "webhook" {
		return "slack"
	}
	return k
}

// Validate checks everything the relay needs before it starts.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if err := checkHTTPURL(c.OpenProject.BaseURL); err != nil {
		add("openproject.base_url: %v", err)
	}
	if strings.TrimSpace(c.OpenProject.ProjectID.String()) == "" {
		add("openproject.project_id is required")
	}
	if strings.TrimSpace(c.OpenProject.AtomKey) == "" {
		add("openproject.atom_key is required (or set %s)", EnvAtomKey)
	}
	if _, err := c.Filters(); err != nil {
		add("openproject.filters: %v", err)
	}

	if _, err := Duration("feed.timeout", c.Feed.Timeout, 0); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.PollSpec(); err != nil {
		add("relay.poll: %v", err)
	}
	if c.Relay.SmartSummaryLimit < 0 {
		add("relay.smart_summary_limit must be >= 0")
	}
	if c.Render.MaxLinks < 0 {
		add("render.max_links must be >= 0")
	}

	switch c.DestinationKind() {
	case "slack":
		if err := checkHTTPURL(c.Destination.WebhookURL); err != nil {
			add("destination.webhook_url: %v (or set %s)", err, EnvWebhookURL)
		}
	case "telegram":
		if strings.TrimSpace(c.Destination.Telegram.Token) == "" {
			add("destination.telegram.token is required (or set %s)", EnvTelegramToken)
		}
		if c.Destination.Telegram.ChatID == 0 {
			add("destination.telegram.chat_id is required")
		}
	default:
		add("destination.kind: unknown kind %q", c.Destination.Kind)
	}

	if c.Notifier.RetryMax != nil && *c.Notifier.RetryMax < 0 {
		add("notifier.retry_max must be >= 0")
	}
	if c.Notifier.RatePerSec < 0 {
		add("notifier.rate_per_sec must be >= 0")
	}
	for path, raw := range map[string]string{
		"notifier.retry_delay": c.Notifier.RetryDelay,
		"notifier.timeout":     c.Notifier.Timeout,
		"journal.busy_timeout": c.Journal.BusyTimeout,
	} {
		if _, err := Duration(path, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Journal.Path) == "" {
			add("journal.path is required for driver %q", c.Journal.Driver)
		}
	default:
		add("journal.driver: unknown driver %q", c.Journal.Driver)
	}

	if c.Ops.Enabled {
		if err := checkOpsAddr(c.Ops); err != nil {
			add("ops.addr: %v", err)
		}
	}
	return errors.Join(errs...)
}

func checkHTTPURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// DefaultOpsAddr binds the ops server to loopback.
const DefaultOpsAddr = "127.0.0.1:9464"

func checkOpsAddr(o OpsConfig) error {
	addr := strings.TrimSpace(o.Addr)
	if addr == "" {
		addr = DefaultOpsAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if isLoopbackHost(host) || strings.TrimSpace(o.Token) != "" || o.AllowInsecure {
		return nil
	}
	return fmt.Errorf("%q is not loopback; set ops.token or ops.allow_insecure", addr)
}

func isLoopbackHost(h string) bool {
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
