package render

import (
	"math"
	"strconv"
	"strings"
	"time"

	"dolphinbot/internal/activity"
)

// AuthorShare is one author's part of a category.
type AuthorShare struct {
	Name    string
	Count   int
	Percent int
}

// Group is the per-category view of a batch.
type Group struct {
	Category  activity.Category
	Count     int
	Links     []activity.Entry
	Truncated bool
	Authors   []AuthorShare
}

// Stats summarises a batch for rendering.
type Stats struct {
	Total  int
	First  time.Time
	Groups []Group
}

// Summarize groups batch by category in first-seen order. At most maxLinks
// entries are kept per group. Author percentages are shares of the group,
// rounded to the nearest integer, listed in first-seen order.
func Summarize(batch []activity.Entry, maxLinks int) Stats {
	st := Stats{Total: len(batch)}
	if len(batch) == 0 {
		return st
	}
	st.First = batch[0].UpdatedAt

	idx := map[activity.Category]int{}
	authorIdx := []map[string]int{}
	for _, e := range batch {
		gi, ok := idx[e.Category]
		if !ok {
			gi = len(st.Groups)
			idx[e.Category] = gi
			st.Groups = append(st.Groups, Group{Category: e.Category})
			authorIdx = append(authorIdx, map[string]int{})
		}
		g := &st.Groups[gi]
		g.Count++
		if len(g.Links) < maxLinks {
			g.Links = append(g.Links, e)
		} else {
			g.Truncated = true
		}
		ai, ok := authorIdx[gi][e.Author]
		if !ok {
			ai = len(g.Authors)
			authorIdx[gi][e.Author] = ai
			g.Authors = append(g.Authors, AuthorShare{Name: e.Author})
		}
		g.Authors[ai].Count++
	}
	for gi := range st.Groups {
		g := &st.Groups[gi]
		for ai := range g.Authors {
			g.Authors[ai].Percent = int(math.Round(100 * float64(g.Authors[ai].Count) / float64(g.Count)))
		}
	}
	return st
}

// Minutes since the first entry, rounded to one decimal.
func (s Stats) Minutes(now time.Time) string {
	if s.First.IsZero() {
		return "0.0"
	}
	m := now.Sub(s.First).Minutes()
	if m < 0 {
		m = 0
	}
	return strconv.FormatFloat(math.Round(m*10)/10, 'f', 1, 64)
}

// authorsLine renders "A (67%), B (33%).".
func authorsLine(authors []AuthorShare) string {
	parts := make([]string, len(authors))
	for i, a := range authors {
		parts[i] = a.Name + " (" + strconv.Itoa(a.Percent) + "%)"
	}
	return strings.Join(parts, ", ") + "."
}
