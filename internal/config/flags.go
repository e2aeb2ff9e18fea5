package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flags binds command-line flags. Values set on the command line override
// both the defaults and the config file.
type Flags struct {
	fs         *pflag.FlagSet
	values     *Config
	configPath string
}

// copyFlag copies the field a flag controls from src to dst.
type copyFlag func(dst, src *Config)

var flagFields = map[string]copyFlag{
	"poll-interval":        func(d, s *Config) { d.PollInterval = s.PollInterval },
	"startup-delay":        func(d, s *Config) { d.StartupDelay = s.StartupDelay },
	"fetch-timeout":        func(d, s *Config) { d.FetchTimeout = s.FetchTimeout },
	"stale-threshold":      func(d, s *Config) { d.StaleThreshold = s.StaleThreshold },
	"user-agent":           func(d, s *Config) { d.UserAgent = s.UserAgent },
	"analysis-concurrency": func(d, s *Config) { d.AnalysisConcurrency = s.AnalysisConcurrency },
	"ffmpeg":               func(d, s *Config) { d.FFmpegPath = s.FFmpegPath },
	"ffprobe":              func(d, s *Config) { d.FFprobePath = s.FFprobePath },
	"probe-timeout":        func(d, s *Config) { d.ProbeTimeout = s.ProbeTimeout },
	"thumbnail-timeout":    func(d, s *Config) { d.ThumbnailTimeout = s.ThumbnailTimeout },
	"thumbnail-seek":       func(d, s *Config) { d.ThumbnailSeek = s.ThumbnailSeek },
	"thumbnail-width":      func(d, s *Config) { d.ThumbnailWidth = s.ThumbnailWidth },
	"thumbnail-dir":        func(d, s *Config) { d.ThumbnailDir = s.ThumbnailDir },
	"no-thumbnails":        func(d, s *Config) { d.DisableThumbnails = s.DisableThumbnails },
	"jitter-seed":          func(d, s *Config) { d.JitterSeed = s.JitterSeed },
	"db":                   func(d, s *Config) { d.DatabasePath = s.DatabasePath },
	"retention":            func(d, s *Config) { d.MetricsRetention = s.MetricsRetention },
	"event-buffer":         func(d, s *Config) { d.EventBuffer = s.EventBuffer },
	"nats-url":             func(d, s *Config) { d.NATSURL = s.NATSURL },
	"nats-subject-prefix":  func(d, s *Config) { d.NATSSubjectPrefix = s.NATSSubjectPrefix },
	"listen":               func(d, s *Config) { d.ListenAddr = s.ListenAddr },
	"latency-window":       func(d, s *Config) { d.LatencyWindow = s.LatencyWindow },
	"log-format":           func(d, s *Config) { d.LogFormat = s.LogFormat },
	"log-level":            func(d, s *Config) { d.LogLevel = s.LogLevel },
	"verbose":              func(d, s *Config) { d.Verbose = s.Verbose },
	"skip-preflight":       func(d, s *Config) { d.SkipPreflight = s.SkipPreflight },
}

// RegisterFlags adds the engine flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, values: DefaultConfig()}
	v := f.values

	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (reloaded on change)")

	// Polling
	fs.DurationVar(&v.PollInterval, "poll-interval", v.PollInterval, "Time between polling cycles")
	fs.DurationVar(&v.StartupDelay, "startup-delay", v.StartupDelay, "Delay before the first cycle")
	fs.DurationVar(&v.FetchTimeout, "fetch-timeout", v.FetchTimeout, "Timeout of each playlist request")
	fs.DurationVar(&v.StaleThreshold, "stale-threshold", v.StaleThreshold, "Staleness threshold for new streams")
	fs.StringVar(&v.UserAgent, "user-agent", v.UserAgent, "HTTP User-Agent header")

	// Deep analysis
	fs.IntVar(&v.AnalysisConcurrency, "analysis-concurrency", v.AnalysisConcurrency, "Concurrent ffprobe/ffmpeg invocations")
	fs.StringVar(&v.FFmpegPath, "ffmpeg", v.FFmpegPath, "Path to FFmpeg binary")
	fs.StringVar(&v.FFprobePath, "ffprobe", v.FFprobePath, "Path to FFprobe binary (default: next to ffmpeg)")
	fs.DurationVar(&v.ProbeTimeout, "probe-timeout", v.ProbeTimeout, "Timeout of one segment probe")
	fs.DurationVar(&v.ThumbnailTimeout, "thumbnail-timeout", v.ThumbnailTimeout, "Timeout of one frame extraction")
	fs.DurationVar(&v.ThumbnailSeek, "thumbnail-seek", v.ThumbnailSeek, "Offset into the segment of the thumbnail frame")
	fs.IntVar(&v.ThumbnailWidth, "thumbnail-width", v.ThumbnailWidth, "Thumbnail width in pixels")
	fs.StringVar(&v.ThumbnailDir, "thumbnail-dir", v.ThumbnailDir, "Directory thumbnails are written to")
	fs.BoolVar(&v.DisableThumbnails, "no-thumbnails", v.DisableThumbnails, "Disable thumbnail extraction")
	fs.Int64Var(&v.JitterSeed, "jitter-seed", v.JitterSeed, "Seed of the signal level jitter (0 = time based)")

	// Persistence
	fs.StringVar(&v.DatabasePath, "db", v.DatabasePath, "SQLite database path")
	fs.DurationVar(&v.MetricsRetention, "retention", v.MetricsRetention, "Metrics snapshot retention")

	// Events
	fs.IntVar(&v.EventBuffer, "event-buffer", v.EventBuffer, "Per-subscriber event buffer")
	fs.StringVar(&v.NATSURL, "nats-url", v.NATSURL, "NATS server URL for event export (empty = disabled)")
	fs.StringVar(&v.NATSSubjectPrefix, "nats-subject-prefix", v.NATSSubjectPrefix, "NATS subject prefix")

	// Observability
	fs.StringVar(&v.ListenAddr, "listen", v.ListenAddr, "HTTP address for /metrics, /ws and /thumbnails")
	fs.DurationVar(&v.LatencyWindow, "latency-window", v.LatencyWindow, "Rolling window of fetch latency percentiles")
	fs.StringVar(&v.LogFormat, "log-format", v.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVarP(&v.Verbose, "verbose", "v", v.Verbose, "Verbose logging, including tool stderr")

	// Diagnostics
	fs.BoolVar(&v.SkipPreflight, "skip-preflight", v.SkipPreflight, "Skip preflight checks")

	return f
}

// ConfigPath returns the --config value.
func (f *Flags) ConfigPath() string {
	return f.configPath
}

// Resolve builds the effective config: defaults, then the config file, then
// flags the user set. Each arg is added as a stream URL. The result is
// validated.
func (f *Flags) Resolve(args []string) (*Config, error) {
	cfg := DefaultConfig()
	if f.configPath != "" {
		loaded, err := Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	f.Apply(cfg)
	for _, u := range args {
		cfg.Streams = append(cfg.Streams, StreamConfig{URL: u})
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// Apply copies every flag set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *pflag.Flag) {
		if copyField, ok := flagFields[fl.Name]; ok {
			copyField(cfg, f.values)
		}
	})
}
