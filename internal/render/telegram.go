package render

import (
	"strconv"
	"strings"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/transport"
)

const htmlContentType = "text/html"

// Telegram renders HTML messages for the Telegram destination.
type Telegram struct {
	base
}

func NewTelegram(project activity.Project, opts Options) *Telegram {
	t := &Telegram{}
	t.init(project, opts)
	return t
}

func (t *Telegram) title(s string, o Options) H {
	h := Esc(s)
	if o.Highlight {
		h = H(Highlight(h.String(), "<i>", "</i>"))
	}
	return h
}

func (t *Telegram) Single(e activity.Entry) (transport.Payload, error) {
	o := t.options()
	st := styleOf(e.Category)
	lines := []H{
		H(st.emoji+" ") + B(e.Category.String()) + " (single update)",
		Link("➜ "+t.title(e.Title, o), e.URL),
		"Author: " + I(e.Author),
	}
	if o.ShowExcerpt && e.Summary != "" {
		lines = append(lines, Esc(e.Summary))
	}
	return t.payload(transport.KindSingle, JoinH("\n", lines...), 1), nil
}

func (t *Telegram) Summary(batch []activity.Entry) (transport.Payload, error) {
	if len(batch) == 0 {
		return transport.Payload{}, ErrNoEntries
	}
	o := t.options()
	now := t.now()
	st := Summarize(batch, o.MaxLinks)

	praise := slackEmojiUnicode.Replace(Praise(Tiers, st.Total, now, t.coin))
	parts := []H{
		Esc(praise+" Recorded a total of "+strconv.Itoa(st.Total)+" changes in the last "+st.Minutes(now)+" minutes ") +
			Link("@OpenProject", t.project.BaseURL) + ". Summary:",
	}
	for _, g := range st.Groups {
		sty := styleOf(g.Category)
		var b strings.Builder
		b.WriteString(sty.emoji + " ")
		b.WriteString(Link(B(g.Category.String()), t.project.CategoryURL(g.Category)).String())
		b.WriteString(" (" + strconv.Itoa(g.Count) + ")\n")
		for _, e := range g.Links {
			b.WriteString(Link("➜", e.URL).String() + " " + t.title(e.Title, o).String() + "\n")
		}
		if g.Truncated {
			b.WriteString("...\n")
		}
		b.WriteString("Author(s): " + Esc(authorsLine(g.Authors)).String())
		parts = append(parts, H(b.String()))
	}
	return t.payload(transport.KindSummary, JoinH("\n\n", parts...), st.Total), nil
}

func (t *Telegram) Log(text string) transport.Payload {
	return t.payload(transport.KindLog, Esc(text), 0)
}

func (t *Telegram) payload(kind transport.Kind, h H, n int) transport.Payload {
	return transport.Payload{Kind: kind, ContentType: htmlContentType, Body: []byte(h), Entries: n}
}
