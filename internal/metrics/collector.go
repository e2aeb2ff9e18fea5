// Package metrics provides Prometheus metrics for streamwatch.
//
// Metrics are organized into panels:
//   - Engine: polling cycles and the number of monitored streams
//   - Manifests: fetch durations, failures by media type, rolling percentiles
//   - Stream health: error counters by type and per-stream score gauges
//   - Analysis: deep analysis pool occupancy and task outcomes
//   - Delivery: event bus drops and connected WebSocket clients
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/pipeline"
)

const namespace = "streamwatch"

// Collector implements the monitor and pipeline observers on top of
// Prometheus metrics.
type Collector struct {
	// Panel 1: Engine
	info          *prometheus.GaugeVec
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	streams       prometheus.Gauge

	// Panel 2: Manifests
	fetchDuration prometheus.Histogram
	fetchFailures *prometheus.CounterVec
	fetchP50      prometheus.Gauge
	fetchP95      prometheus.Gauge
	fetchP99      prometheus.Gauge

	// Panel 3: Stream health
	streamErrors *prometheus.CounterVec
	healthScore  *prometheus.GaugeVec
	videoScore   *prometheus.GaugeVec
	audioScore   *prometheus.GaugeVec

	// Panel 4: Analysis
	analysisInFlight prometheus.Gauge
	analysisQueued   *prometheus.CounterVec
	analysisDropped  *prometheus.CounterVec
	analysisTasks    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec

	latency *LatencyWindow
	now     func() time.Time

	mu          sync.Mutex
	totalCycles int64
	peakStreams int
}

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	Version       string
	LatencyWindow time.Duration

	// Optional sources for delivery gauges.
	EventsDropped func() float64
	WSClients     func() float64
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with registry.
// Tests pass an isolated prometheus.NewRegistry().
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = DefaultLatencyWindow
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the running engine (value always 1)",
		}, []string{"version"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed polling cycles",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one polling cycle over all streams",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams",
			Help:      "Streams checked in the last cycle",
		}),

		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manifest_fetch_duration_seconds",
			Help:      "Duration of a manifest retrieval including the variant playlist",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifest_fetch_failures_total",
			Help:      "Failed manifest retrievals by media type",
		}, []string{"media_type"}),
		fetchP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_fetch_p50_seconds",
			Help:      "Median manifest fetch duration over the rolling window",
		}),
		fetchP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_fetch_p95_seconds",
			Help:      "95th percentile manifest fetch duration over the rolling window",
		}),
		fetchP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_fetch_p99_seconds",
			Help:      "99th percentile manifest fetch duration over the rolling window",
		}),

		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Errors appended to stream error logs by type",
		}, []string{"type"}),
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_health_score",
			Help:      "Health score of a stream (0-100)",
		}, []string{"stream_id"}),
		videoScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_video_score",
			Help:      "Video score of a stream (0-100)",
		}, []string{"stream_id"}),
		audioScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_audio_score",
			Help:      "Audio score of a stream (0-100)",
		}, []string{"stream_id"}),

		analysisInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analysis_in_flight",
			Help:      "Deep analysis tasks currently running",
		}),
		analysisQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_queued_total",
			Help:      "Deep analysis tasks accepted by kind",
		}, []string{"kind"}),
		analysisDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_dropped_total",
			Help:      "Deep analysis tasks superseded by a newer segment before they started",
		}, []string{"kind"}),
		analysisTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_tasks_total",
			Help:      "Finished deep analysis tasks by kind and result",
		}, []string{"kind", "result"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of deep analysis tasks by kind",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),

		latency: NewLatencyWindow(cfg.LatencyWindow),
		now:     time.Now,
	}

	registry.MustRegister(
		// Panel 1: Engine
		c.info,
		c.cycles,
		c.cycleDuration,
		c.streams,

		// Panel 2: Manifests
		c.fetchDuration,
		c.fetchFailures,
		c.fetchP50,
		c.fetchP95,
		c.fetchP99,

		// Panel 3: Stream health
		c.streamErrors,
		c.healthScore,
		c.videoScore,
		c.audioScore,

		// Panel 4: Analysis
		c.analysisInFlight,
		c.analysisQueued,
		c.analysisDropped,
		c.analysisTasks,
		c.analysisDuration,
	)

	// Panel 5: Delivery
	if cfg.EventsDropped != nil {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		}, cfg.EventsDropped))
	}
	if cfg.WSClients != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}, cfg.WSClients))
	}

	c.info.WithLabelValues(cfg.Version).Set(1)
	return c
}

// =============================================================================
// monitor.Observer
// =============================================================================

// CycleCompleted records a finished polling cycle.
func (c *Collector) CycleCompleted(d time.Duration, streams int) {
	c.cycles.Inc()
	c.cycleDuration.Observe(d.Seconds())
	c.streams.Set(float64(streams))

	c.mu.Lock()
	c.totalCycles++
	if streams > c.peakStreams {
		c.peakStreams = streams
	}
	c.mu.Unlock()
}

// FetchCompleted records one manifest retrieval. failed is empty on success.
func (c *Collector) FetchCompleted(d time.Duration, failed model.MediaType) {
	c.fetchDuration.Observe(d.Seconds())
	if failed != "" {
		c.fetchFailures.WithLabelValues(string(failed)).Inc()
	}

	now := c.now()
	c.latency.Add(d, now)
	p50, p95, p99 := c.latency.Quantiles(now)
	c.fetchP50.Set(p50)
	c.fetchP95.Set(p95)
	c.fetchP99.Set(p99)
}

// StreamErrorRecorded counts an error appended to a stream.
func (c *Collector) StreamErrorRecorded(t model.ErrorType) {
	c.streamErrors.WithLabelValues(string(t)).Inc()
}

// ScoresUpdated publishes the current scores of a stream.
func (c *Collector) ScoresUpdated(streamID string, scores model.Scores) {
	c.healthScore.WithLabelValues(streamID).Set(float64(scores.Health))
	c.videoScore.WithLabelValues(streamID).Set(float64(scores.Video))
	c.audioScore.WithLabelValues(streamID).Set(float64(scores.Audio))
}

// StreamRemoved deletes the per-stream series of a removed stream.
func (c *Collector) StreamRemoved(streamID string) {
	c.healthScore.DeleteLabelValues(streamID)
	c.videoScore.DeleteLabelValues(streamID)
	c.audioScore.DeleteLabelValues(streamID)
}

// =============================================================================
// pipeline.Observer
// =============================================================================

// TaskQueued counts an accepted analysis task.
func (c *Collector) TaskQueued(kind pipeline.Kind) {
	c.analysisQueued.WithLabelValues(string(kind)).Inc()
}

// TaskDropped counts an analysis task superseded before it started.
func (c *Collector) TaskDropped(kind pipeline.Kind) {
	c.analysisDropped.WithLabelValues(string(kind)).Inc()
}

// TaskFinished records the outcome of an analysis task.
func (c *Collector) TaskFinished(kind pipeline.Kind, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.analysisTasks.WithLabelValues(string(kind), result).Inc()
	c.analysisDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// InFlightChanged sets the running task gauge.
func (c *Collector) InFlightChanged(n int) {
	c.analysisInFlight.Set(float64(n))
}

// =============================================================================
// Summary
// =============================================================================

// Summary is a point-in-time digest of the collector, logged at shutdown.
type Summary struct {
	Cycles      int64
	PeakStreams int
	FetchP50    time.Duration
	FetchP95    time.Duration
	FetchP99    time.Duration
}

// GenerateSummary builds a Summary.
func (c *Collector) GenerateSummary() *Summary {
	p50, p95, p99 := c.latency.Quantiles(c.now())

	c.mu.Lock()
	defer c.mu.Unlock()
	return &Summary{
		Cycles:      c.totalCycles,
		PeakStreams: c.peakStreams,
		FetchP50:    secondsToDuration(p50),
		FetchP95:    secondsToDuration(p95),
		FetchP99:    secondsToDuration(p99),
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
