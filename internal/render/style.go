package render

import (
	"regexp"
	"strings"

	"dolphinbot/internal/activity"
)

type style struct {
	slackEmoji string
	emoji      string
	color      string
}

var styles = map[activity.Category]style{
	activity.Unknown:     {":coffee:", "☕", "00b7c3"},
	activity.WorkPackage: {":package:", "📦", "00b7c3"},
	activity.News:        {":newspaper:", "📰", "248c15"},
	activity.Wiki:        {":book:", "📖", "11696d"},
	activity.Document:    {":page_facing_up:", "📄", "681793"},
	activity.Meeting:     {":calendar:", "📅", "e0283a"},
	activity.CostObject:  {":moneybag:", "💰", "e0d01d"},
	activity.TimeEntry:   {":watch:", "⌚", "a58747"},
}

func styleOf(c activity.Category) style {
	if s, ok := styles[c]; ok {
		return s
	}
	return styles[activity.Unknown]
}

// Keywords are status and type words italicised in titles.
var Keywords = []string{
	"New", "In progress", "Closed", "On hold", "Permanent", "Rejected",
	"Task", "Phase", "Milestone", "Release", "Feature", "Bug",
}

var keywordRE = func() *regexp.Regexp {
	q := make([]string, len(Keywords))
	for i, k := range Keywords {
		q[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(q, "|") + `)\b`)
}()

// Highlight wraps every keyword occurrence in s with open and close.
func Highlight(s, open, close string) string {
	return keywordRE.ReplaceAllStringFunc(s, func(m string) string {
		return open + m + close
	})
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// slackEsc escapes the three control characters of Slack mrkdwn.
func slackEsc(s string) string { return slackEscaper.Replace(s) }

var slackEmojiUnicode = strings.NewReplacer(
	":star2:", "🌟",
	":star:", "⭐",
	":heart_eyes:", "😍",
	":full_moon_with_face:", "🌝",
)
