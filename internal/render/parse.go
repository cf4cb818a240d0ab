package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dolphinbot/internal/activity"
)

// ParsedGroup is what ParseSummary recovers for one category.
type ParsedGroup struct {
	Category activity.Category
	Count    int
	Authors  []AuthorShare // Count is not recoverable and stays zero
}

// ParsedSummary is the structure recovered from a rendered Slack summary.
type ParsedSummary struct {
	Total  int
	Groups []ParsedGroup
}

var (
	totalRE  = regexp.MustCompile(`Recorded a total of (\d+) changes`)
	titleRE  = regexp.MustCompile(`^\S+ (.+) \((\d+)\)$`)
	authorRE = regexp.MustCompile(`(.+?) \((\d+)%\)(?:, |\.$)`)
)

var byDisplayName = func() map[string]activity.Category {
	m := map[string]activity.Category{activity.Unknown.String(): activity.Unknown}
	for _, c := range activity.Categories {
		m[c.String()] = c
	}
	return m
}()

// ParseSummary reads back the per-category counts and author percentages of
// a Slack summary payload body.
func ParseSummary(body []byte) (ParsedSummary, error) {
	var msg slackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ParsedSummary{}, fmt.Errorf("parse summary: %w", err)
	}
	var out ParsedSummary
	m := totalRE.FindStringSubmatch(msg.Text)
	if m == nil {
		return out, fmt.Errorf("parse summary: no total in %q", msg.Text)
	}
	out.Total, _ = strconv.Atoi(m[1])

	unesc := strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
	for _, a := range msg.Attachments {
		tm := titleRE.FindStringSubmatch(a.Title)
		if tm == nil {
			return out, fmt.Errorf("parse summary: bad attachment title %q", a.Title)
		}
		c, ok := byDisplayName[tm[1]]
		if !ok {
			return out, fmt.Errorf("parse summary: unknown category %q", tm[1])
		}
		g := ParsedGroup{Category: c}
		g.Count, _ = strconv.Atoi(tm[2])
		for _, f := range a.Fields {
			if f.Title != "Author(s)" {
				continue
			}
			for _, am := range authorRE.FindAllStringSubmatch(unesc.Replace(f.Value), -1) {
				p, _ := strconv.Atoi(am[2])
				g.Authors = append(g.Authors, AuthorShare{Name: am[1], Percent: p})
			}
		}
		out.Groups = append(out.Groups, g)
	}
	return out, nil
}
