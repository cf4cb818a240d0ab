package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Config struct {
	OpenProject OpenProjectConfig `json:"openproject"`
	Feed        FeedConfig        `json:"feed,omitempty"`
	Relay       RelayConfig       `json:"relay"`
	Render      RenderConfig      `json:"render,omitempty"`
	Destination DestinationConfig `json:"destination"`
	Notifier    NotifierConfig    `json:"notifier,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
	Ops         OpsConfig         `json:"ops,omitempty"`
	Journal     JournalConfig     `json:"journal,omitempty"`
	Systemd     SystemdConfig     `json:"systemd,omitempty"`
}

// OpenProjectConfig addresses the watched project.
//
// atom_key and api_key are secrets; prefer DOLPHIN_ATOM_KEY and
// DOLPHIN_API_KEY over writing them into the file.
type OpenProjectConfig struct {
	BaseURL   string   `json:"base_url"`
	ProjectID Flex     `json:"project_id"`
	AtomKey   string   `json:"atom_key,omitempty"`
	APIKey    string   `json:"api_key,omitempty"`
	Filters   []string `json:"filters,omitempty"` // empty: every category
}

type FeedConfig struct {
	// Timeout bounds one feed fetch (Go duration string). Default "30s".
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// RelayConfig controls the poll loop.
//
// Poll accepts plain seconds (90), a Go duration ("90s"), "HH:MM" or a cron
// expression. Default 90 seconds.
type RelayConfig struct {
	Poll              Flex `json:"poll,omitempty"`
	AllowRepeats      bool `json:"allow_repeats"`
	SmartSummaryLimit int  `json:"smart_summary_limit,omitempty"`
}

type RenderConfig struct {
	MaxLinks int `json:"max_links,omitempty"`
	// HighlightKeywords is a pointer so an omitted value defaults to true.
	HighlightKeywords *bool  `json:"highlight_keywords,omitempty"`
	ShowExcerpt       bool   `json:"show_excerpt,omitempty"`
	Username          string `json:"username,omitempty"`
	IconEmoji         string `json:"icon_emoji,omitempty"`
}

// DestinationConfig selects where notifications go.
//
// Example:
//
//	"destination": { "kind": "slack", "webhook_url": "https://hooks.slack.com/services/..." }
type DestinationConfig struct {
	Kind       string              `json:"kind,omitempty"` // "slack" (default) | "telegram"
	WebhookURL string              `json:"webhook_url,omitempty"`
	Telegram   TelegramDestination `json:"telegram,omitempty"`
}

type TelegramDestination struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
}

// NotifierConfig controls delivery retries.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// RetryMax is a pointer so an explicit 0 disables retries.
type NotifierConfig struct {
	RetryMax   *int   `json:"retry_max,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings and errors to the destination.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the optional operations HTTP server
// (/metrics, /healthz, /debug/pprof/).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9464").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// JournalConfig controls the optional delivery journal.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "./dolphinbot.db" }
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// Flex is a scalar that may be written as a JSON string or number.
type Flex string

func (f *Flex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = Flex(n.String())
	return nil
}

func (f Flex) String() string { return string(f) }
