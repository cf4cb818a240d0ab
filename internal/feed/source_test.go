package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dolphinbot/internal/activity"
)

const sampleAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Demo: Activity</title>
  <id>https://op.example.com/projects/demo/activity</id>
  <updated>2024-05-02T10:15:00Z</updated>
  <entry>
    <title>Task #21 (In progress): Wire the relay</title>
    <id>https://op.example.com/work_packages/21</id>
    <link rel="alternate" href="https://op.example.com/work_packages/21"/>
    <updated>2024-05-02T10:15:00Z</updated>
    <author><name>Ada Lovelace</name></author>
    <content type="html">&lt;p&gt;Status changed from &lt;i&gt;New&lt;/i&gt; to &lt;i&gt;In progress&lt;/i&gt;&lt;/p&gt;</content>
  </entry>
  <entry>
    <title>Spent 2.00 hours</title>
    <id>https://op.example.com/work_packages/21/time_entries</id>
    <updated>2024-05-02T09:00:00Z</updated>
    <author><name>Grace Hopper</name></author>
  </entry>
</feed>`

func TestParse(t *testing.T) {
	t.Parallel()
	snap, err := Parse(sampleAtom)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	wantUpdated := time.Date(2024, 5, 2, 10, 15, 0, 0, time.UTC)
	if !snap.UpdatedAt.Equal(wantUpdated) {
		t.Fatalf("UpdatedAt = %v, want %v", snap.UpdatedAt, wantUpdated)
	}
	if snap.UpdatedAt.Location() != time.Local {
		t.Fatalf("UpdatedAt not in local time: %v", snap.UpdatedAt.Location())
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(snap.Entries))
	}
	first := snap.Entries[0]
	if first.URL != "https://op.example.com/work_packages/21" || first.Category != activity.WorkPackage {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.Author != "Ada Lovelace" {
		t.Fatalf("Author = %q", first.Author)
	}
	if first.Summary != "Status changed from New to In progress" {
		t.Fatalf("Summary = %q", first.Summary)
	}
	if snap.Entries[1].Category != activity.TimeEntry {
		t.Fatalf("second entry category = %v, want TimeEntry", snap.Entries[1].Category)
	}
}

func TestParseRejectsMissingUpdated(t *testing.T) {
	t.Parallel()
	body := `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>x</title></feed>`
	if _, err := Parse(body); err == nil {
		t.Fatal("expected error for feed without updated timestamp")
	}
	if _, err := Parse("not xml at all"); err == nil {
		t.Fatal("expected error for garbage body")
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	t.Parallel()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Query().Get("key") {
		case "good":
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(sampleAtom))
		case "garbage":
			_, _ = w.Write([]byte("<html>login</html>"))
		default:
			http.Error(w, "nope", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/feed?key=good", "dolphinbot/test", time.Second).WithClient(srv.Client())
	snap, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(snap.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(snap.Entries))
	}
	if gotUA != "dolphinbot/test" {
		t.Fatalf("User-Agent = %q", gotUA)
	}

	_, err = NewHTTPSource(srv.URL+"/feed?key=bad", "", time.Second).WithClient(srv.Client()).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindHTTP || fe.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected HTTP 401 FetchError, got %v", err)
	}

	_, err = NewHTTPSource(srv.URL+"/feed?key=garbage", "", time.Second).WithClient(srv.Client()).Fetch(context.Background())
	if !errors.As(err, &fe) || fe.Kind != KindParse {
		t.Fatalf("expected parse FetchError, got %v", err)
	}
}

func TestHTTPSourceTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	src := NewHTTPSource(srv.URL, "", 50*time.Millisecond)
	_, err := src.Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNetwork {
		t.Fatalf("expected network FetchError on hung fetch, got %v", err)
	}
}
