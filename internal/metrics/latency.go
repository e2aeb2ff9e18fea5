package metrics

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DefaultLatencyWindow is the span of fetch latencies the percentiles cover.
const DefaultLatencyWindow = 5 * time.Minute

const digestCompression = 100

type latencySample struct {
	seconds float64
	time    time.Time
}

// LatencyWindow keeps a rolling T-Digest of durations. The digest is rebuilt
// only when samples expire.
type LatencyWindow struct {
	mu        sync.Mutex
	window    time.Duration
	digest    *tdigest.TDigest
	samples   []latencySample
	lastClean time.Time
}

// NewLatencyWindow creates a window spanning d. Windows shorter than 10s are
// raised to 10s.
func NewLatencyWindow(d time.Duration) *LatencyWindow {
	if d < 10*time.Second {
		d = 10 * time.Second
	}
	return &LatencyWindow{
		window: d,
		digest: tdigest.NewWithCompression(digestCompression),
	}
}

// Add records d observed at now.
func (w *LatencyWindow) Add(d time.Duration, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.digest.Add(d.Seconds(), 1)
	w.samples = append(w.samples, latencySample{seconds: d.Seconds(), time: now})
	if len(w.samples) > 64 || now.Sub(w.lastClean) > 10*time.Second {
		w.cleanup(now)
	}
}

// Quantiles returns the p50, p95 and p99 latencies in seconds of samples
// newer than the window. All are zero when the window is empty.
func (w *LatencyWindow) Quantiles(now time.Time) (p50, p95, p99 float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cleanup(now)
	if len(w.samples) == 0 {
		return 0, 0, 0
	}
	return w.digest.Quantile(0.50), w.digest.Quantile(0.95), w.digest.Quantile(0.99)
}

// Len returns the number of samples currently held.
func (w *LatencyWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// cleanup drops samples older than the window. Callers hold w.mu.
func (w *LatencyWindow) cleanup(now time.Time) {
	cutoff := now.Add(-w.window)
	valid := w.samples[:0]
	expired := 0
	for _, s := range w.samples {
		if s.time.After(cutoff) {
			valid = append(valid, s)
		} else {
			expired++
		}
	}
	if expired > 0 {
		w.digest = tdigest.NewWithCompression(digestCompression)
		for _, s := range valid {
			w.digest.Add(s.seconds, 1)
		}
	}
	w.samples = valid
	w.lastClean = now
}
