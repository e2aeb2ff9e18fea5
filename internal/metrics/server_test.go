package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/streamwatch/internal/logging"
)

func TestServer_MetricsEndpoint(t *testing.T) {
	c, reg := newTestCollector(CollectorConfig{Version: "test"})
	c.CycleCompleted(time.Second, 2)

	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: reg}, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decode: %v", err)
		}
		families[mf.GetName()] = &mf
	}

	cycles, ok := families["streamwatch_cycles_total"]
	if !ok {
		t.Fatal("streamwatch_cycles_total missing from /metrics")
	}
	if v := cycles.GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("cycles_total = %v, want 1", v)
	}
	if _, ok := families["streamwatch_info"]; !ok {
		t.Error("streamwatch_info missing from /metrics")
	}
}

func TestServer_HealthAndReady(t *testing.T) {
	var down atomic.Bool
	srv := NewServer(ServerConfig{
		Addr: "127.0.0.1:0",
		Ready: func(context.Context) error {
			if down.Load() {
				return errors.New("db down")
			}
			return nil
		},
	}, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		path string
		down bool
		want int
	}{
		{"/health", false, http.StatusOK},
		{"/healthz", true, http.StatusOK},
		{"/ready", false, http.StatusOK},
		{"/readyz", true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			down.Store(tt.down)
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_Thumbnails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "s1.jpg"), []byte("JPEGDATA"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0", ThumbnailDir: dir}, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/thumbnails/s1.jpg?t=1700000000000")
	if err != nil {
		t.Fatalf("GET thumbnail: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "JPEGDATA" {
		t.Errorf("thumbnail = %d %q", resp.StatusCode, body)
	}
	if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q", cc)
	}

	resp, err = http.Get(ts.URL + "/thumbnails/")
	if err != nil {
		t.Fatalf("GET listing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("listing status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, logging.Discard())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
