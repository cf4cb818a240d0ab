// Package render turns activity entries into destination payloads.
//
// Two formats exist: Slack incoming-webhook attachments (JSON) and Telegram
// HTML. Both share the batch statistics and praise selection in this package.
package render

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/transport"
)

var ErrNoEntries = errors.New("render: no entries")

// Renderer builds payloads for one destination.
type Renderer interface {
	Single(e activity.Entry) (transport.Payload, error)
	Summary(batch []activity.Entry) (transport.Payload, error)
	Log(text string) transport.Payload
	Apply(opts Options)
}

// Options are the hot-reloadable render settings.
type Options struct {
	Username    string
	IconEmoji   string
	MaxLinks    int
	Highlight   bool
	ShowExcerpt bool

	// Footer bits of the single-update message.
	AppName  string
	Version  string
	Homepage string
}

const (
	DefaultUsername  = "dolphinbot"
	DefaultIconEmoji = ":dolphin:"
	DefaultMaxLinks  = 7
	DefaultHomepage  = "https://github.com/dolphinbot/dolphinbot"
)

func (o Options) withDefaults() Options {
	if o.Username == "" {
		o.Username = DefaultUsername
	}
	if o.IconEmoji == "" {
		o.IconEmoji = DefaultIconEmoji
	}
	if o.MaxLinks <= 0 {
		o.MaxLinks = DefaultMaxLinks
	}
	if o.AppName == "" {
		o.AppName = DefaultUsername
	}
	if o.Homepage == "" {
		o.Homepage = DefaultHomepage
	}
	return o
}

// base carries what every format needs: the project URLs, options, a clock
// and a coin for the randomized praise tier.
type base struct {
	project activity.Project
	opts    atomic.Pointer[Options]
	now     func() time.Time
	coin    func() bool
}

func (b *base) init(project activity.Project, opts Options) {
	b.project = project
	b.now = time.Now
	b.coin = func() bool { return rand.IntN(2) == 1 }
	b.Apply(opts)
}

func (b *base) Apply(opts Options) {
	o := opts.withDefaults()
	b.opts.Store(&o)
}

func (b *base) options() Options { return *b.opts.Load() }

// SetClock replaces the wall clock and the praise coin. Nil keeps the
// current one.
func (b *base) SetClock(now func() time.Time, coin func() bool) {
	if now != nil {
		b.now = now
	}
	if coin != nil {
		b.coin = coin
	}
}

// New returns the renderer for a destination kind ("slack" or "telegram").
func New(kind string, project activity.Project, opts Options) (Renderer, error) {
	switch kind {
	case "", "slack", "webhook":
		return NewSlack(project, opts), nil
	case "telegram":
		return NewTelegram(project, opts), nil
	default:
		return nil, errors.New("render: unknown destination kind " + kind)
	}
}
