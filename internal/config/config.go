// Package config provides configuration management for streamwatch.
//
// Values come from DefaultConfig, are overridden by an optional YAML file
// and finally by command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the engine.
type Config struct {
	// Polling
	PollInterval   time.Duration `yaml:"poll_interval"`
	StartupDelay   time.Duration `yaml:"startup_delay"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
	UserAgent      string        `yaml:"user_agent"`

	// Deep analysis
	AnalysisConcurrency int           `yaml:"analysis_concurrency"`
	FFmpegPath          string        `yaml:"ffmpeg_path"`
	FFprobePath         string        `yaml:"ffprobe_path"` // empty = next to ffmpeg
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	ThumbnailTimeout    time.Duration `yaml:"thumbnail_timeout"`
	ThumbnailSeek       time.Duration `yaml:"thumbnail_seek"`
	ThumbnailWidth      int           `yaml:"thumbnail_width"`
	ThumbnailDir        string        `yaml:"thumbnail_dir"`
	DisableThumbnails   bool          `yaml:"disable_thumbnails"`
	JitterSeed          int64         `yaml:"jitter_seed"` // 0 = seeded from time

	// Persistence
	DatabasePath     string        `yaml:"database_path"`
	MetricsRetention time.Duration `yaml:"metrics_retention"`

	// Events
	EventBuffer       int    `yaml:"event_buffer"`
	NATSURL           string `yaml:"nats_url"` // empty = NATS export disabled
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	// Observability
	ListenAddr    string        `yaml:"listen_addr"`
	LatencyWindow time.Duration `yaml:"latency_window"`
	LogFormat     string        `yaml:"log_format"` // json, text
	LogLevel      string        `yaml:"log_level"`
	Verbose       bool          `yaml:"verbose"`

	// Diagnostics
	SkipPreflight bool `yaml:"skip_preflight"`

	// Monitored streams
	Streams []StreamConfig `yaml:"streams"`

	// Path of the file this config was loaded from, if any.
	Path string `yaml:"-"`
}

// StreamConfig declares one monitored stream. ID is derived from URL when
// empty.
type StreamConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Polling
		PollInterval:   7 * time.Second,
		StartupDelay:   2 * time.Second,
		FetchTimeout:   10 * time.Second,
		StaleThreshold: 7 * time.Second,
		UserAgent:      "streamwatch/1.0",

		// Deep analysis
		AnalysisConcurrency: 4,
		FFmpegPath:          "ffmpeg",
		ProbeTimeout:        30 * time.Second,
		ThumbnailTimeout:    30 * time.Second,
		ThumbnailSeek:       0,
		ThumbnailWidth:      320,
		ThumbnailDir:        "thumbnails",

		// Persistence
		DatabasePath:     "streamwatch.db",
		MetricsRetention: 7 * 24 * time.Hour,

		// Events
		EventBuffer:       256,
		NATSSubjectPrefix: "streamwatch",

		// Observability
		ListenAddr:    "0.0.0.0:17092",
		LatencyWindow: 5 * time.Minute,
		LogFormat:     "json",
		LogLevel:      "info",
	}
}

// Load reads path over the defaults. The result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// LoadAndValidate is Load followed by Validate.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
