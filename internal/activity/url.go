package activity

import (
	"net/url"
	"strconv"
	"strings"
)

// Project addresses a single OpenProject project.
type Project struct {
	BaseURL string
	ID      string
}

// NewProject trims trailing slashes off base so the builders can join paths.
func NewProject(base, id string) Project {
	return Project{BaseURL: strings.TrimRight(strings.TrimSpace(base), "/"), ID: strings.TrimSpace(id)}
}

func filterQuery(filters []Category) string {
	if len(filters) == 0 {
		filters = Categories
	}
	var b strings.Builder
	b.WriteString("apply=true")
	for _, f := range filters {
		k := f.Keyword()
		if k == "" {
			continue
		}
		b.WriteString("&show_")
		b.WriteString(k)
		b.WriteString("=1")
	}
	return b.String()
}

// ActivityURL is the human activity page, restricted to filters (all
// categories when empty).
func (p Project) ActivityURL(filters ...Category) string {
	return p.BaseURL + "/projects/" + p.ID + "/activity?" + filterQuery(filters)
}

// CategoryURL is the activity page for one category. Unknown falls back to
// the unfiltered page.
func (p Project) CategoryURL(c Category) string {
	if c == Unknown {
		return p.ActivityURL()
	}
	return p.ActivityURL(c)
}

// AtomURL is the authenticated Atom feed of the project activity.
func (p Project) AtomURL(key string, filters ...Category) string {
	return p.BaseURL + "/projects/" + p.ID + "/activity.atom?key=" + url.QueryEscape(key) + "&" + filterQuery(filters)
}

// APIProjectURL addresses the v3 API resource of an arbitrary project id.
func (p Project) APIProjectURL(id int) string {
	return p.BaseURL + "/api/v3/projects/" + strconv.Itoa(id)
}
