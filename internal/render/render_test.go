package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"dolphinbot/internal/activity"
)

var (
	project = activity.NewProject("https://op.example.com/", "demo")
	t0      = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
)

func entry(cat activity.Category, title, author string, min int) activity.Entry {
	path := "/work_packages/1"
	if k := cat.Keyword(); k != "" {
		path = "/" + k + "/1"
	}
	if cat == activity.Unknown {
		path = "/projects/demo"
	}
	return activity.Entry{
		URL:       "https://op.example.com" + path,
		Title:     title,
		Author:    author,
		UpdatedAt: t0.Add(time.Duration(min) * time.Minute),
		Category:  cat,
	}
}

func fixedClock(at time.Time, heads bool) (func() time.Time, func() bool) {
	return func() time.Time { return at }, func() bool { return heads }
}

func TestPraiseLastMatchWins(t *testing.T) {
	t.Parallel()
	day := time.Date(2024, 3, 1, 14, 0, 0, 0, time.Local)
	night := time.Date(2024, 3, 1, 3, 0, 0, 0, time.Local)
	tails := func() bool { return false }
	heads := func() bool { return true }

	tests := []struct {
		c    int
		now  time.Time
		coin func() bool
		want string
	}{
		{1, day, tails, "Hi."},
		{3, day, tails, "Cool."},
		{7, day, tails, "Nice."},
		{11, day, tails, "Wow. :star:"},
		{12, day, tails, "Huzzah! :star2:"},
		{12, day, heads, "Huzzah! :heart_eyes:"},
		{12, night, tails, "Huzzah! :star2:"},
		{14, night, heads, "Thank you night owl! :full_moon_with_face:"},
		{14, day, heads, "Huzzah! :heart_eyes:"},
	}
	for _, tt := range tests {
		if got := Praise(Tiers, tt.c, tt.now, tt.coin); got != tt.want {
			t.Fatalf("Praise(%d, %v) = %q, want %q", tt.c, tt.now.Hour(), got, tt.want)
		}
	}
}

func TestPraiseTwelveDaytimeNeverLowerTier(t *testing.T) {
	t.Parallel()
	for hour := 6; hour < 24; hour++ {
		now := time.Date(2024, 3, 1, hour, 0, 0, 0, time.Local)
		for _, heads := range []bool{false, true} {
			got := Praise(Tiers, 12, now, func() bool { return heads })
			if got != "Huzzah! :star2:" && got != "Huzzah! :heart_eyes:" {
				t.Fatalf("hour %d heads=%v: got %q", hour, heads, got)
			}
		}
	}
}

func TestHighlight(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"Bug #12: Status changed from New to In progress", "_Bug_ #12: Status changed from _New_ to _In progress_"},
		{"Newsletter draft", "Newsletter draft"},
		{"Task closed", "_Task_ closed"},
	}
	for _, tt := range tests {
		if got := Highlight(tt.in, "_", "_"); got != tt.want {
			t.Fatalf("Highlight(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	batch := []activity.Entry{
		entry(activity.WorkPackage, "a", "Ann", 0),
		entry(activity.Wiki, "b", "Bob", 1),
		entry(activity.WorkPackage, "c", "Ann", 2),
		entry(activity.WorkPackage, "d", "Bob", 3),
	}
	st := Summarize(batch, 2)
	if st.Total != 4 || len(st.Groups) != 2 {
		t.Fatalf("stats = %+v", st)
	}
	wp := st.Groups[0]
	if wp.Category != activity.WorkPackage || wp.Count != 3 || len(wp.Links) != 2 || !wp.Truncated {
		t.Fatalf("work packages group = %+v", wp)
	}
	if got := authorsLine(wp.Authors); got != "Ann (67%), Bob (33%)." {
		t.Fatalf("authors = %q", got)
	}
	if st.Groups[1].Truncated {
		t.Fatal("wiki group should not be truncated")
	}
	if got := st.Minutes(t0.Add(90 * time.Second)); got != "1.5" {
		t.Fatalf("Minutes = %q", got)
	}
	if got := st.Minutes(t0.Add(25 * time.Hour)); got != "1500.0" {
		t.Fatalf("Minutes over a day = %q", got)
	}
}

func TestSlackSingle(t *testing.T) {
	t.Parallel()
	r := NewSlack(project, Options{Highlight: true, ShowExcerpt: true, Version: "v1.0.0"})
	e := entry(activity.TimeEntry, "Bug <fix> & Task", "Ann", 0)
	e.Summary = "spent 2h"
	p, err := r.Single(e)
	if err != nil {
		t.Fatalf("Single error: %v", err)
	}
	var msg slackMessage
	if err := json.Unmarshal(p.Body, &msg); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if msg.Username != DefaultUsername || msg.IconEmoji != ":dolphin:" || len(msg.Attachments) != 1 {
		t.Fatalf("message = %+v", msg)
	}
	a := msg.Attachments[0]
	if a.Title != ":watch: Time entries (Single Update)" || a.Color != "#a58747" {
		t.Fatalf("title/color = %q %q", a.Title, a.Color)
	}
	if want := "<" + e.URL + "|➜ _Bug_ &lt;fix&gt; &amp; _Task_>"; a.Text != want {
		t.Fatalf("text = %q, want %q", a.Text, want)
	}
	if a.TS != e.UpdatedAt.Unix() || !strings.Contains(a.Footer, "dolphinbot v1.0.0") {
		t.Fatalf("ts/footer = %d %q", a.TS, a.Footer)
	}
	if len(a.Fields) != 2 || a.Fields[0].Value != "Ann" || a.Fields[1].Title != "Details" {
		t.Fatalf("fields = %+v", a.Fields)
	}
}

func TestSlackSummaryRoundTrip(t *testing.T) {
	t.Parallel()
	r := NewSlack(project, Options{MaxLinks: 2})
	r.SetClock(fixedClock(t0.Add(10*time.Minute), false))

	batch := []activity.Entry{
		entry(activity.WorkPackage, "a", "Ann", 0),
		entry(activity.WorkPackage, "b", "Bob", 1),
		entry(activity.Meeting, "m", "Cy, Jr.", 2),
		entry(activity.WorkPackage, "c", "Ann", 3),
		entry(activity.Unknown, "x", "Ann", 4),
	}
	p, err := r.Summary(batch)
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if p.Entries != 5 {
		t.Fatalf("Entries = %d", p.Entries)
	}
	var msg slackMessage
	_ = json.Unmarshal(p.Body, &msg)
	if !strings.HasPrefix(msg.Text, "Cool. Recorded a total of 5 changes in the last 10.0 minutes <https://op.example.com|@OpenProject>") {
		t.Fatalf("text = %q", msg.Text)
	}
	if !strings.HasSuffix(msg.Attachments[0].Text, " ...") {
		t.Fatalf("overflow marker missing: %q", msg.Attachments[0].Text)
	}
	if msg.Attachments[2].Title != ":coffee: Other (1)" {
		t.Fatalf("unknown title = %q", msg.Attachments[2].Title)
	}

	got, err := ParseSummary(p.Body)
	if err != nil {
		t.Fatalf("ParseSummary error: %v", err)
	}
	want := Summarize(batch, 2)
	if got.Total != want.Total || len(got.Groups) != len(want.Groups) {
		t.Fatalf("parsed = %+v", got)
	}
	for i, g := range want.Groups {
		pg := got.Groups[i]
		if pg.Category != g.Category || pg.Count != g.Count || len(pg.Authors) != len(g.Authors) {
			t.Fatalf("group %d parsed = %+v, want %+v", i, pg, g)
		}
		for j, a := range g.Authors {
			if pg.Authors[j].Name != a.Name || pg.Authors[j].Percent != a.Percent {
				t.Fatalf("group %d author %d = %+v, want %+v", i, j, pg.Authors[j], a)
			}
		}
	}
}

func TestSummaryEmpty(t *testing.T) {
	t.Parallel()
	for _, r := range []Renderer{NewSlack(project, Options{}), NewTelegram(project, Options{})} {
		if _, err := r.Summary(nil); !errors.Is(err, ErrNoEntries) {
			t.Fatalf("err = %v", err)
		}
	}
}

func TestTelegramSummary(t *testing.T) {
	t.Parallel()
	r := NewTelegram(project, Options{Highlight: true})
	r.SetClock(fixedClock(time.Date(2024, 3, 1, 14, 0, 0, 0, time.Local), true))
	batch := make([]activity.Entry, 12)
	for i := range batch {
		batch[i] = entry(activity.News, "New <release>", "Ann", 0)
	}
	p, err := r.Summary(batch)
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	body := string(p.Body)
	for _, want := range []string{
		"Huzzah! 😍 Recorded a total of 12 changes",
		`<a href="https://op.example.com">@OpenProject</a>`,
		"📰 <a href=",
		"<b>News</b></a> (12)",
		"<i>New</i> &lt;release&gt;",
		"...\nAuthor(s): Ann (100%).",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
	if p.ContentType != "text/html" {
		t.Fatalf("content type = %q", p.ContentType)
	}
}

func TestNewRenderer(t *testing.T) {
	t.Parallel()
	if _, err := New("telegram", project, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := New("slack", project, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := New("irc", project, Options{}); err == nil {
		t.Fatal("expected error")
	}
}
