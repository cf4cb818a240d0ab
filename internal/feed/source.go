// Package feed reads the OpenProject activity feed and tracks which of its
// entries have already been handed to the relay.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"dolphinbot/internal/activity"
)

// maxBodyBytes bounds how much of a feed response is read.
const maxBodyBytes = 8 << 20

// excerptRunes caps the plain-text summary kept per entry.
const excerptRunes = 280

// Snapshot is one parsed fetch of the feed.
type Snapshot struct {
	UpdatedAt time.Time
	Entries   []activity.Entry
}

// Source yields the current feed contents. Errors are *FetchError.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// HTTPSource fetches an Atom document over HTTP.
type HTTPSource struct {
	client    *http.Client
	url       string
	userAgent string
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource returns a source for url. timeout bounds each fetch so a hung
// server surfaces as a network FetchError instead of stalling the poll loop.
func NewHTTPSource(url, userAgent string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		userAgent: userAgent,
	}
}

// WithClient swaps the HTTP client (tests use httptest clients).
func (s *HTTPSource) WithClient(c *http.Client) *HTTPSource {
	if c != nil {
		s.client = c
	}
	return s
}

func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return Snapshot{}, ClassifyNetworkError(fmt.Errorf("new request: %w", err), s.url)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml;q=0.9, */*;q=0.1")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Snapshot{}, ClassifyNetworkError(err, s.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Snapshot{}, ClassifyHTTPStatus(resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Snapshot{}, ClassifyNetworkError(fmt.Errorf("read body: %w", err), s.url)
	}

	snap, err := Parse(string(body))
	if err != nil {
		return Snapshot{}, ClassifyParseError(err, s.url)
	}
	return snap, nil
}

// Parse converts an Atom document into a Snapshot. Times are converted to
// local time. The feed-level updated timestamp is mandatory.
func Parse(body string) (Snapshot, error) {
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse feed: %w", err)
	}
	if parsed.UpdatedParsed == nil {
		return Snapshot{}, errors.New("parse feed: missing feed updated timestamp")
	}

	snap := Snapshot{
		UpdatedAt: parsed.UpdatedParsed.Local(),
		Entries:   make([]activity.Entry, 0, len(parsed.Items)),
	}
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		link := entryURL(it)
		e := activity.Entry{
			URL:      link,
			Title:    strings.TrimSpace(it.Title),
			Author:   entryAuthor(it),
			Category: activity.Classify(link),
			Summary:  excerpt(it),
		}
		// Entries without a timestamp stay at the zero time and never pass
		// the watermark.
		if it.UpdatedParsed != nil {
			e.UpdatedAt = it.UpdatedParsed.Local()
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, nil
}

// entryURL prefers the Atom id, which OpenProject sets to the resource URL,
// and falls back to the first link.
func entryURL(it *gofeed.Item) string {
	if strings.HasPrefix(it.GUID, "http") {
		return it.GUID
	}
	if it.Link != "" {
		return it.Link
	}
	return it.GUID
}

func entryAuthor(it *gofeed.Item) string {
	for _, p := range it.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	return ""
}

func excerpt(it *gofeed.Item) string {
	raw := it.Content
	if strings.TrimSpace(raw) == "" {
		raw = it.Description
	}
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	r := []rune(text)
	if len(r) > excerptRunes {
		text = string(r[:excerptRunes-1]) + "…"
	}
	return text
}
