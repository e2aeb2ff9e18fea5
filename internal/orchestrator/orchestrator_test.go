package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/streamwatch/internal/config"
	"github.com/randomizedcoder/streamwatch/internal/logging"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/store"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:%d
#EXTINF:6.0,
seg%d.ts
#EXTINF:6.0,
seg%d.ts
#EXTINF:6.0,
seg%d.ts
`

// liveOrigin serves a media playlist whose sequence advances on every request.
func liveOrigin(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/live/index.m3u8" {
			http.NotFound(w, r)
			return
		}
		seq := 100 + hits.Add(1)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprintf(w, mediaPlaylist, seq, seq, seq+1, seq+2)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestStreamSpecs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.StaleThreshold = 12 * time.Second
	cfg.Streams = []config.StreamConfig{
		{ID: "news", Name: "News", URL: "https://cdn.example.com/news.m3u8"},
		{URL: "https://cdn.example.com/sports.m3u8"},
	}

	specs := streamSpecs(cfg)
	if len(specs) != 2 {
		t.Fatalf("len = %d, want 2", len(specs))
	}
	if specs[0].ID != "news" || specs[0].Name != "News" {
		t.Errorf("specs[0] = %+v", specs[0])
	}
	if specs[1].ID != "" || specs[1].StreamID() == "" {
		t.Errorf("specs[1] id = %q, derived %q", specs[1].ID, specs[1].StreamID())
	}
	for _, s := range specs {
		if s.StaleThreshold != 12*time.Second {
			t.Errorf("StaleThreshold = %v", s.StaleThreshold)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{26 * time.Hour, "26:00:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestCheck_MediaPlaylist(t *testing.T) {
	srv, _ := liveOrigin(t)
	url := srv.URL + "/live/index.m3u8"

	var buf bytes.Buffer
	report, err := Check(context.Background(), manifest.NewFetcher(manifest.Config{Timeout: 2 * time.Second}), url, &buf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if report.Status != model.StatusOnline {
		t.Errorf("Status = %q, want online", report.Status)
	}
	if report.MediaSequence != 101 || report.SegmentCount != 3 {
		t.Errorf("MediaSequence = %d SegmentCount = %d", report.MediaSequence, report.SegmentCount)
	}
	if report.LastSegment != srv.URL+"/live/seg103.ts" {
		t.Errorf("LastSegment = %q", report.LastSegment)
	}
	if report.HealthScore != 100 || len(report.Errors) != 0 {
		t.Errorf("HealthScore = %d errors = %+v", report.HealthScore, report.Errors)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if decoded["url"] != url {
		t.Errorf("url = %v", decoded["url"])
	}
}

func TestCheck_FetchFailure(t *testing.T) {
	srv, _ := liveOrigin(t)

	var buf bytes.Buffer
	report, err := Check(context.Background(), manifest.NewFetcher(manifest.Config{Timeout: 2 * time.Second}), srv.URL+"/missing.m3u8", &buf)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Status != model.StatusError {
		t.Errorf("Status = %q, want error", report.Status)
	}
	if len(report.Errors) != 1 || report.Errors[0].ErrorType != model.ErrManifestRetrieval {
		t.Fatalf("Errors = %+v", report.Errors)
	}
	if report.Errors[0].Code != http.StatusNotFound {
		t.Errorf("Code = %d, want 404", report.Errors[0].Code)
	}
	if report.HealthScore >= 100 {
		t.Errorf("HealthScore = %d, want penalized", report.HealthScore)
	}
}

func testConfig(t *testing.T, urls ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.StartupDelay = 0
	cfg.FetchTimeout = 2 * time.Second
	cfg.ProbeTimeout = time.Second
	cfg.FFprobePath = filepath.Join(dir, "no-ffprobe")
	cfg.DisableThumbnails = true
	cfg.SkipPreflight = true
	cfg.DatabasePath = filepath.Join(dir, "streamwatch.db")
	cfg.ListenAddr = "127.0.0.1:0"
	for _, u := range urls {
		cfg.Streams = append(cfg.Streams, config.StreamConfig{Name: "live", URL: u})
	}
	return cfg
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	srv, hits := liveOrigin(t)
	cfg := testConfig(t, srv.URL+"/live/index.m3u8")

	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	o := New(cfg, logging.Discard(), Options{
		Version:    "test",
		Registerer: reg,
		Gatherer:   reg,
		Output:     &out,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Cycles are sequential, so a third request means two cycles completed.
	deadline := time.Now().Add(10 * time.Second)
	for hits.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if hits.Load() < 3 {
		t.Fatalf("origin saw %d requests, want >= 3", hits.Load())
	}

	if !strings.Contains(out.String(), "Exit Summary") {
		t.Errorf("exit summary missing:\n%s", out.String())
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()

	streams, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(streams))
	}
	s := streams[0]
	if s.Status != model.StatusOnline {
		t.Errorf("Status = %q, want online", s.Status)
	}
	if s.Health.MediaSequence <= 100 || s.Health.SegmentCount != 3 {
		t.Errorf("Health = %+v", s.Health)
	}
	if s.Health.SequenceResets != 0 {
		t.Errorf("SequenceResets = %d", s.Health.SequenceResets)
	}

	snaps, err := st.Snapshots(context.Background(), s.ID, time.Time{})
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) == 0 {
		t.Error("no metrics snapshots recorded")
	}
}

func TestRun_PreflightFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.SkipPreflight = false

	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	o := New(cfg, logging.Discard(), Options{Registerer: reg, Gatherer: reg, Output: &out})

	err := o.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "preflight") {
		t.Fatalf("Run err = %v, want preflight failure", err)
	}
	if !strings.Contains(out.String(), "ffprobe") {
		t.Errorf("preflight output missing ffprobe:\n%s", out.String())
	}
}
