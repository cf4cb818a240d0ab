package render

import (
	"encoding/json"
	"strconv"
	"strings"

	"dolphinbot/internal/activity"
	"dolphinbot/internal/transport"
)

type slackMessage struct {
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Fallback  string       `json:"fallback,omitempty"`
	Color     string       `json:"color"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	TS        int64        `json:"ts,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	MrkdwnIn  []string     `json:"mrkdwn_in,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Slack renders Slack incoming-webhook messages.
type Slack struct {
	base
}

func NewSlack(project activity.Project, opts Options) *Slack {
	s := &Slack{}
	s.init(project, opts)
	return s
}

func (s *Slack) title(t string, o Options) string {
	t = slackEsc(t)
	if o.Highlight {
		t = Highlight(t, "_", "_")
	}
	return t
}

func (s *Slack) Single(e activity.Entry) (transport.Payload, error) {
	o := s.options()
	st := styleOf(e.Category)
	att := slackAttachment{
		Title: st.slackEmoji + " " + e.Category.String() + " (Single Update)",
		Color: "#" + st.color,
		Text:  "<" + e.URL + "|➜ " + s.title(e.Title, o) + ">",
		Fields: []slackField{
			{Title: "Author", Value: slackEsc(e.Author)},
		},
		TS:       e.UpdatedAt.Unix(),
		Footer:   "<" + o.Homepage + "|" + strings.TrimSpace(o.AppName+" "+o.Version) + ">",
		MrkdwnIn: []string{"text"},
	}
	if o.ShowExcerpt && e.Summary != "" {
		att.Fields = append(att.Fields, slackField{Title: "Details", Value: slackEsc(e.Summary)})
	}
	msg := slackMessage{Username: o.Username, IconEmoji: o.IconEmoji, Attachments: []slackAttachment{att}}
	return s.payload(transport.KindSingle, msg, 1)
}

func (s *Slack) Summary(batch []activity.Entry) (transport.Payload, error) {
	if len(batch) == 0 {
		return transport.Payload{}, ErrNoEntries
	}
	o := s.options()
	now := s.now()
	st := Summarize(batch, o.MaxLinks)

	msg := slackMessage{
		Username:  o.Username,
		IconEmoji: o.IconEmoji,
		Text: Praise(Tiers, st.Total, now, s.coin) +
			" Recorded a total of " + strconv.Itoa(st.Total) +
			" changes in the last " + st.Minutes(now) +
			" minutes <" + s.project.BaseURL + "|@OpenProject>. Summary:",
	}
	for _, g := range st.Groups {
		sty := styleOf(g.Category)
		var text strings.Builder
		for _, e := range g.Links {
			text.WriteString("<" + e.URL + "|➜> " + s.title(e.Title, o) + "\n")
		}
		if g.Truncated {
			text.WriteString(" ...")
		}
		msg.Attachments = append(msg.Attachments, slackAttachment{
			Title:     sty.slackEmoji + " " + g.Category.String() + " (" + strconv.Itoa(g.Count) + ")",
			TitleLink: s.project.CategoryURL(g.Category),
			Fallback:  strconv.Itoa(g.Count) + " new changes for " + g.Category.String() + ".",
			Color:     "#" + sty.color,
			Text:      text.String(),
			Fields:    []slackField{{Title: "Author(s)", Value: slackEsc(authorsLine(g.Authors))}},
			MrkdwnIn:  []string{"text"},
		})
	}
	return s.payload(transport.KindSummary, msg, st.Total)
}

func (s *Slack) Log(text string) transport.Payload {
	o := s.options()
	p, _ := s.payload(transport.KindLog, slackMessage{Username: o.Username, IconEmoji: o.IconEmoji, Text: slackEsc(text)}, 0)
	return p
}

func (s *Slack) payload(kind transport.Kind, msg slackMessage, n int) (transport.Payload, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return transport.Payload{}, err
	}
	return transport.Payload{Kind: kind, ContentType: "application/json", Body: b, Entries: n}, nil
}
