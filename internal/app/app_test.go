package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dolphinbot/internal/config"
	"dolphinbot/internal/notifier"
	"dolphinbot/internal/storage"
	"dolphinbot/internal/transport"
)

const oldFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Demo: Activity</title>
  <id>%[1]s/projects/demo/activity</id>
  <updated>2024-05-02T10:00:00Z</updated>
  <entry>
    <title>Wiki: Home</title>
    <id>%[1]s/projects/demo/wiki/home</id>
    <link rel="alternate" href="%[1]s/projects/demo/wiki/home"/>
    <updated>2024-05-02T10:00:00Z</updated>
    <author><name>Ada</name></author>
  </entry>
</feed>`

const newFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Demo: Activity</title>
  <id>%[1]s/projects/demo/activity</id>
  <updated>2024-05-02T10:05:00Z</updated>
  <entry>
    <title>Task #42 (New): Ship the relay</title>
    <id>%[1]s/work_packages/42</id>
    <link rel="alternate" href="%[1]s/work_packages/42"/>
    <updated>2024-05-02T10:05:00Z</updated>
    <author><name>Grace</name></author>
  </entry>
  <entry>
    <title>Wiki: Home</title>
    <id>%[1]s/projects/demo/wiki/home</id>
    <link rel="alternate" href="%[1]s/projects/demo/wiki/home"/>
    <updated>2024-05-02T10:00:00Z</updated>
    <author><name>Ada</name></author>
  </entry>
</feed>`

// feedServer serves oldFeed for the first `flipAfter` requests and newFeed
// afterwards.
func feedServer(t *testing.T, flipAfter int64) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "atom-key" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		n := hits.Add(1)
		body := oldFeed
		if n > flipAfter {
			body = newFeed
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, body, srv.URL)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

type hookRecorder struct {
	mu     sync.Mutex
	bodies []string
	got    chan struct{}
}

func hookServer(t *testing.T) (*httptest.Server, *hookRecorder) {
	t.Helper()
	rec := &hookRecorder{got: make(chan struct{}, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(b))
		rec.mu.Unlock()
		rec.got <- struct{}{}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func (r *hookRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

func writeConfig(t *testing.T, feedURL, hookURL, journal string) string {
	t.Helper()
	body := fmt.Sprintf(`
openproject:
  base_url: %s
  project_id: demo
  atom_key: atom-key
relay:
  poll: 100ms
destination:
  kind: slack
  webhook_url: %s
notifier:
  retry_max: 0
  retry_delay: 10ms
  rate_per_sec: 50
logging:
  level: error
  console: true
journal:
  driver: file
  path: %s
`, feedURL, hookURL, journal)
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

// Tests that build an App or a console logger run serially: logx sets
// zerolog package globals on construction.

func TestAppRelaysNewEntry(t *testing.T) {
	feed, _ := feedServer(t, 1)
	hook, rec := hookServer(t)
	journal := filepath.Join(t.TempDir(), "deliveries.jsonl")
	cfgPath := writeConfig(t, feed.URL, hook.URL, journal)

	a, err := New(cfgPath, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook delivery")
	}
	// Give the loop a few more cycles; the unchanged feed must stay quiet.
	time.Sleep(350 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	bodies := rec.all()
	if len(bodies) != 1 {
		t.Fatalf("deliveries = %d, want 1: %v", len(bodies), bodies)
	}
	if !strings.Contains(bodies[0], "Single Update") || !strings.Contains(bodies[0], "Ship the relay") {
		t.Fatalf("unexpected payload: %s", bodies[0])
	}
	if strings.Contains(bodies[0], "Wiki: Home") {
		t.Fatalf("primed history was replayed: %s", bodies[0])
	}

	f, err := os.Open(journal)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	var lines []storage.Delivery
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d storage.Delivery
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			t.Fatalf("journal line: %v", err)
		}
		lines = append(lines, d)
	}
	if len(lines) != 1 || !lines[0].OK || lines[0].Kind != string(transport.KindSingle) || lines[0].Destination != "webhook" {
		t.Fatalf("journal = %+v", lines)
	}
}

func TestAppStartFailsOnBadFeed(t *testing.T) {
	hook, _ := hookServer(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(dead.Close)

	cfgPath := writeConfig(t, dead.URL, hook.URL, filepath.Join(t.TempDir(), "j.jsonl"))
	a, err := New(cfgPath, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded against a failing feed")
	}
	_ = a.Stop(context.Background(), StopFatalError)
}

func TestCheck(t *testing.T) {
	feed, _ := feedServer(t, 0)
	hook, rec := hookServer(t)
	cfgPath := writeConfig(t, feed.URL, hook.URL, filepath.Join(t.TempDir(), "j.jsonl"))

	rep, err := Check(context.Background(), cfgPath, "test", CheckOptions{Latest: 5})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Entries != 2 || rep.Stats.Total != 2 || len(rep.Stats.Groups) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Sent || len(rec.all()) != 0 {
		t.Fatal("dry run must not send")
	}
	if rep.Payload.Kind != transport.KindSummary || len(rep.Payload.Body) == 0 {
		t.Fatalf("payload = %+v", rep.Payload)
	}

	rep, err = Check(context.Background(), cfgPath, "test", CheckOptions{Latest: 1, Send: true})
	if err != nil {
		t.Fatalf("Check --send: %v", err)
	}
	if !rep.Sent || rep.Stats.Total != 1 || len(rec.all()) != 1 {
		t.Fatalf("send report = %+v, deliveries = %d", rep, len(rec.all()))
	}
}

func TestMapNotifierConfig(t *testing.T) {
	t.Parallel()
	zero := 0
	tests := []struct {
		name string
		in   config.NotifierConfig
		want notifier.Config
	}{
		{
			name: "defaults",
			want: notifier.Config{RetryMax: notifier.DefaultRetryMax, RetryDelay: notifier.DefaultRetryDelay, Timeout: notifier.DefaultTimeout},
		},
		{
			name: "explicit zero retries",
			in:   config.NotifierConfig{RetryMax: &zero, RetryDelay: "2s", RatePerSec: 3, Timeout: "1s"},
			want: notifier.Config{RetryMax: 0, RetryDelay: 2 * time.Second, RatePerSec: 3, Timeout: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapNotifierConfig(&config.Config{Notifier: tt.in})
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := mapNotifierConfig(&config.Config{Notifier: config.NotifierConfig{RetryDelay: "soon"}}); err == nil {
		t.Fatal("expected error for bad retry_delay")
	}
}

func TestMapRenderOptionsAndAgent(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	if o := mapRenderOptions(cfg, "1.2.3"); !o.Highlight || o.Version != "1.2.3" {
		t.Fatalf("defaults = %+v", o)
	}
	off := false
	cfg.Render.HighlightKeywords = &off
	if o := mapRenderOptions(cfg, ""); o.Highlight {
		t.Fatal("highlight should be off")
	}
	if ua := userAgent(cfg, "1.2.3"); ua != "dolphinbot/1.2.3" {
		t.Fatalf("ua = %q", ua)
	}
	cfg.Feed.UserAgent = "custom/1"
	if ua := userAgent(cfg, "1.2.3"); ua != "custom/1" {
		t.Fatalf("ua = %q", ua)
	}
}

func TestApplyConfigHotReload(t *testing.T) {
	feed, _ := feedServer(t, 1)
	hook, _ := hookServer(t)
	cfgPath := writeConfig(t, feed.URL, hook.URL, filepath.Join(t.TempDir(), "j.jsonl"))
	a, err := New(cfgPath, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Relay.AllowRepeats = true
	next.Relay.SmartSummaryLimit = 4
	three := 3
	next.Notifier.RetryMax = &three
	a.applyConfig(oldCfg, &next)

	if s := a.relay.Settings(); !s.AllowRepeats || s.SummaryLimit != 4 {
		t.Fatalf("relay settings = %+v", s)
	}
	if c := a.notif.Config(); c.RetryMax != 3 {
		t.Fatalf("notifier retry = %d", c.RetryMax)
	}
}
