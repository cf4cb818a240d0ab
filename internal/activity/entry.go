// Package activity holds the value types shared by the feed reader, the relay
// and the renderers: activity entries, their categories and the OpenProject
// URLs that point back at them.
package activity

import "time"

// Entry is one item of the project activity feed. It is treated as immutable
// once produced by the feed source.
type Entry struct {
	URL       string
	Title     string
	Author    string
	UpdatedAt time.Time
	Category  Category

	// Summary is a plain-text excerpt of the entry content. Empty when the
	// feed carries none.
	Summary string
}

// SameAs reports whether e repeats o by title and author.
func (e Entry) SameAs(o Entry) bool {
	return e.Title == o.Title && e.Author == o.Author
}
