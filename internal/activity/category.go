package activity

import (
	"fmt"
	"net/url"
	"strings"
)

// Category classifies an activity entry by the resource its URL points at.
type Category uint8

const (
	Unknown Category = iota
	WorkPackage
	Wiki
	News
	Document
	Meeting
	CostObject
	TimeEntry
)

// Categories lists every known category in the order OpenProject filters are
// requested by default.
var Categories = []Category{WorkPackage, Wiki, News, Document, Meeting, CostObject, TimeEntry}

var keywords = map[Category]string{
	WorkPackage: "work_packages",
	Wiki:        "wiki",
	News:        "news",
	Document:    "documents",
	Meeting:     "meetings",
	CostObject:  "cost_objects",
	TimeEntry:   "time_entries",
}

var byKeyword = func() map[string]Category {
	m := make(map[string]Category, len(keywords))
	for c, k := range keywords {
		m[k] = c
	}
	return m
}()

// Keyword returns the feed filter keyword ("work_packages", ...). Unknown has none.
func (c Category) Keyword() string { return keywords[c] }

// String returns the human display name, e.g. "Work packages".
func (c Category) String() string {
	k := keywords[c]
	if k == "" {
		return "Other"
	}
	s := strings.ReplaceAll(k, "_", " ")
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseCategory maps a filter keyword to its category.
func ParseCategory(keyword string) (Category, error) {
	c, ok := byKeyword[strings.ToLower(strings.TrimSpace(keyword))]
	if !ok {
		return Unknown, fmt.Errorf("unknown activity category %q", keyword)
	}
	return c, nil
}

// Classify derives the category of an entry URL. Path segments are matched
// exactly against the category keywords and the rightmost match wins, so
// ".../work_packages/21/time_entries" is a TimeEntry.
func Classify(rawURL string) Category {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	found := Unknown
	for _, seg := range strings.Split(path, "/") {
		if c, ok := byKeyword[seg]; ok {
			found = c
		}
	}
	return found
}
