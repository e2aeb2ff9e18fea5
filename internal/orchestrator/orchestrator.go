// Package orchestrator wires the streamwatch engine together and runs it
// until a signal or context cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/streamwatch/internal/config"
	"github.com/randomizedcoder/streamwatch/internal/events"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/media"
	"github.com/randomizedcoder/streamwatch/internal/metrics"
	"github.com/randomizedcoder/streamwatch/internal/monitor"
	"github.com/randomizedcoder/streamwatch/internal/pipeline"
	"github.com/randomizedcoder/streamwatch/internal/preflight"
	"github.com/randomizedcoder/streamwatch/internal/store"
	"github.com/randomizedcoder/streamwatch/internal/ws"
)

// shutdownTimeout bounds the drain of analysis tasks and the HTTP server.
const shutdownTimeout = 10 * time.Second

// Options customize an Orchestrator beyond its Config.
type Options struct {
	Version string

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	// Overrides is applied to every reloaded config file before it is used,
	// so command-line flags keep winning over the file.
	Overrides func(*config.Config)

	// Output receives preflight results and the exit summary.
	Output io.Writer

	// HandleSignals installs SIGINT/SIGTERM handling.
	HandleSignals bool
}

// Orchestrator coordinates all components of the engine.
type Orchestrator struct {
	config *config.Config
	opts   Options
	logger *slog.Logger

	store      *store.Store
	bus        *events.Bus
	nats       *events.NATSPublisher
	collector  *metrics.Collector
	server     *metrics.Server
	hub        *ws.Hub
	pool       *pipeline.Pool
	analyzer   *pipeline.Analyzer
	checker    *monitor.Checker
	scheduler  *monitor.Scheduler
	reconciler *monitor.Reconciler

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration. Nothing is
// opened until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Orchestrator{config: cfg, opts: opts, logger: logger}
}

// Run starts the engine. It blocks until ctx is cancelled or a signal
// arrives, then shuts down gracefully.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()
	cfg := o.config

	ffprobe := cfg.FFprobePath
	if ffprobe == "" {
		ffprobe = media.FindFFprobe(cfg.FFmpegPath)
	}

	// Run preflight checks
	if !cfg.SkipPreflight {
		opts := preflight.Options{
			FFprobePath:  ffprobe,
			Streams:      len(cfg.Streams),
			Concurrency:  cfg.AnalysisConcurrency,
			DatabasePath: cfg.DatabasePath,
		}
		if !cfg.DisableThumbnails {
			opts.FFmpegPath = cfg.FFmpegPath
			opts.ThumbnailDir = cfg.ThumbnailDir
		}
		result := preflight.RunAll(opts)
		preflight.PrintResults(o.opts.Output, result)
		if !result.Passed {
			return errors.New("preflight checks failed (use --skip-preflight to override)")
		}
	}

	st, err := store.Open(cfg.DatabasePath, store.WithRetention(cfg.MetricsRetention))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	o.store = st

	o.bus = events.NewBus()
	publishers := events.Multi{o.bus}
	if cfg.NATSURL != "" {
		o.nats, err = events.DialNATS(events.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Name:          "streamwatch",
		}, o.logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer o.nats.Close()
		publishers = append(publishers, o.nats)
	}

	o.hub = ws.New(o.bus, cfg.EventBuffer, o.initialEvents, o.logger)
	o.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:       o.opts.Version,
		LatencyWindow: cfg.LatencyWindow,
		EventsDropped: func() float64 { return float64(o.bus.Dropped()) },
		WSClients:     func() float64 { return float64(o.hub.Count()) },
	}, o.opts.Registerer)

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.opts.HandleSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				o.logger.Info("received_signal", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o.build(ctx, ffprobe, publishers)

	res, err := o.reconciler.Apply(ctx, streamSpecs(cfg))
	if err != nil {
		o.logger.Warn("stream_reconcile_incomplete", "error", err)
	}
	o.logger.Info("streams_reconciled", "added", res.Added, "removed", res.Removed, "configured", len(cfg.Streams))

	thumbDir := ""
	if !cfg.DisableThumbnails {
		thumbDir = cfg.ThumbnailDir
	}
	o.server = metrics.NewServer(metrics.ServerConfig{
		Addr:         cfg.ListenAddr,
		Gatherer:     o.opts.Gatherer,
		Events:       o.hub,
		ThumbnailDir: thumbDir,
		Ready:        st.Ping,
	}, o.logger)
	if err := o.server.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	o.logger.Info("engine_started",
		"version", o.opts.Version,
		"streams", len(cfg.Streams),
		"poll_interval", cfg.PollInterval.String(),
		"listen_addr", o.server.Addr(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.scheduler.Run(gctx) })
	g.Go(func() error { o.hub.Run(gctx); return nil })
	g.Go(func() error { st.Run(gctx, store.DefaultEvictInterval, o.logger); return nil })
	if cfg.Path != "" {
		g.Go(func() error {
			if err := config.Watch(gctx, cfg.Path, o.logger, o.reload(gctx)); err != nil {
				o.logger.Warn("config_watch_unavailable", "path", cfg.Path, "error", err)
			}
			return nil
		})
	}

	<-gctx.Done()
	cancel()
	runErr := g.Wait()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	drained := make(chan struct{})
	go func() {
		o.pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		o.logger.Warn("analysis_drain_incomplete", "pending", o.pool.Pending())
	}

	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("http_server_shutdown_error", "error", err)
	}

	o.printExitSummary()
	return runErr
}

// build creates the polling and analysis components. The pool lives as long
// as ctx.
func (o *Orchestrator) build(ctx context.Context, ffprobe string, pub events.Publisher) {
	cfg := o.config

	o.pool = pipeline.NewPool(ctx, cfg.AnalysisConcurrency, o.collector, o.logger)

	var thumbs pipeline.ThumbnailSaver
	if !cfg.DisableThumbnails {
		thumbs = media.NewFrameExtractor(media.ExtractorConfig{
			Binary:    cfg.FFmpegPath,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.ThumbnailTimeout,
			Seek:      cfg.ThumbnailSeek,
			Width:     cfg.ThumbnailWidth,
			Dir:       cfg.ThumbnailDir,
			Logger:    o.logger,
			Verbose:   cfg.Verbose,
		})
	}

	jitter := pipeline.NewJitterSourceFromTime(pipeline.DefaultJitterAmplitude)
	if cfg.JitterSeed != 0 {
		jitter = pipeline.NewJitterSource(cfg.JitterSeed, pipeline.DefaultJitterAmplitude)
	}

	o.analyzer = pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
		Pool:      o.pool,
		Prober:    media.NewProber(ffprobe, cfg.UserAgent, cfg.ProbeTimeout),
		Thumbs:    thumbs,
		Repo:      o.store,
		Publisher: pub,
		Jitter:    jitter,
		Scores:    o.collector,
		Logger:    o.logger,
	})

	o.checker = monitor.NewChecker(monitor.CheckerConfig{
		Repo: o.store,
		Fetcher: manifest.NewFetcher(manifest.Config{
			Timeout:   cfg.FetchTimeout,
			UserAgent: cfg.UserAgent,
		}),
		Deep:      o.analyzer,
		Publisher: pub,
		Observer:  o.collector,
		Logger:    o.logger,
	})

	o.reconciler = monitor.NewReconciler(o.store, o.checker.Tracker(), pub,
		removalObserver{Collector: o.collector, analyzer: o.analyzer}, o.logger)

	o.scheduler = monitor.NewScheduler(monitor.SchedulerConfig{
		Streams:      o.store,
		Checker:      o.checker,
		Interval:     cfg.PollInterval,
		StartupDelay: cfg.StartupDelay,
		Observer:     o.collector,
		Logger:       o.logger,
	})
}

// reload returns the config watch callback. Only the stream list is applied
// live; other settings take effect on restart.
func (o *Orchestrator) reload(ctx context.Context) func(*config.Config) {
	return func(next *config.Config) {
		if o.opts.Overrides != nil {
			o.opts.Overrides(next)
		}
		res, err := o.reconciler.Apply(ctx, streamSpecs(next))
		if err != nil {
			o.logger.Warn("stream_reconcile_incomplete", "error", err)
		}
		o.logger.Info("streams_reconciled", "added", res.Added, "removed", res.Removed, "configured", len(next.Streams))
	}
}

// initialEvents returns one update event per stored stream for a newly
// connected WebSocket client.
func (o *Orchestrator) initialEvents(ctx context.Context) []events.Event {
	streams, err := o.store.List(ctx)
	if err != nil {
		o.logger.Warn("initial_events_failed", "error", err)
		return nil
	}
	now := time.Now()
	out := make([]events.Event, 0, len(streams))
	for _, s := range streams {
		out = append(out, events.New(events.KindUpdate, s.ID, s, now))
	}
	return out
}

// removalObserver also releases analyzer state of removed streams.
type removalObserver struct {
	*metrics.Collector
	analyzer *pipeline.Analyzer
}

func (r removalObserver) StreamRemoved(id string) {
	r.Collector.StreamRemoved(id)
	r.analyzer.Forget(id)
}

func streamSpecs(cfg *config.Config) []monitor.StreamSpec {
	specs := make([]monitor.StreamSpec, 0, len(cfg.Streams))
	for _, s := range cfg.Streams {
		specs = append(specs, monitor.StreamSpec{
			ID:             s.ID,
			Name:           s.Name,
			URL:            s.URL,
			StaleThreshold: cfg.StaleThreshold,
		})
	}
	return specs
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary() {
	summary := o.collector.GenerateSummary()
	w := o.opts.Output

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                       streamwatch Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(time.Since(o.startTime)))
	fmt.Fprintf(w, "Polling Cycles:         %d\n", summary.Cycles)
	fmt.Fprintf(w, "Peak Streams:           %d\n", summary.PeakStreams)
	fmt.Fprintf(w, "Analysis Peak:          %d\n", o.pool.Peak())
	fmt.Fprintln(w)

	if summary.FetchP50 > 0 {
		fmt.Fprintln(w, "Manifest Fetch Latency:")
		fmt.Fprintf(w, "  P50 (median):         %s\n", summary.FetchP50.Round(time.Millisecond))
		fmt.Fprintf(w, "  P95:                  %s\n", summary.FetchP95.Round(time.Millisecond))
		fmt.Fprintf(w, "  P99:                  %s\n", summary.FetchP99.Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Events dropped:         %d\n", o.bus.Dropped())
	fmt.Fprintf(w, "Metrics endpoint was:   http://%s/metrics\n", o.config.ListenAddr)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Store returns the open store while Run is active.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// Metrics returns the metrics collector while Run is active.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.collector
}
