package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/randomizedcoder/streamwatch/internal/logging"
)

// streamIDPattern limits stream ids to characters safe in file names and URL
// paths; ids name thumbnail files and appear in /thumbnails/ URLs.
var streamIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	positive := []struct {
		field string
		ok    bool
	}{
		{"poll_interval", cfg.PollInterval > 0},
		{"fetch_timeout", cfg.FetchTimeout > 0},
		{"stale_threshold", cfg.StaleThreshold > 0},
		{"probe_timeout", cfg.ProbeTimeout > 0},
		{"thumbnail_timeout", cfg.ThumbnailTimeout > 0},
		{"metrics_retention", cfg.MetricsRetention > 0},
		{"latency_window", cfg.LatencyWindow > 0},
	}
	for _, p := range positive {
		if !p.ok {
			errs = append(errs, ValidationError{Field: p.field, Message: "must be positive"})
		}
	}

	if cfg.StartupDelay < 0 {
		errs = append(errs, ValidationError{Field: "startup_delay", Message: "must not be negative"})
	}
	if cfg.ThumbnailSeek < 0 {
		errs = append(errs, ValidationError{Field: "thumbnail_seek", Message: "must not be negative"})
	}

	if cfg.AnalysisConcurrency < 1 {
		errs = append(errs, ValidationError{Field: "analysis_concurrency", Message: "must be at least 1"})
	}
	if cfg.ThumbnailWidth < 16 {
		errs = append(errs, ValidationError{Field: "thumbnail_width", Message: "must be at least 16"})
	}
	if cfg.EventBuffer < 1 {
		errs = append(errs, ValidationError{Field: "event_buffer", Message: "must be at least 1"})
	}

	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		errs = append(errs, ValidationError{Field: "ffmpeg_path", Message: "must not be empty"})
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		errs = append(errs, ValidationError{Field: "database_path", Message: "must not be empty"})
	}
	if !cfg.DisableThumbnails && strings.TrimSpace(cfg.ThumbnailDir) == "" {
		errs = append(errs, ValidationError{Field: "thumbnail_dir", Message: "must not be empty unless thumbnails are disabled"})
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		errs = append(errs, ValidationError{Field: "listen_addr", Message: "must not be empty"})
	}

	if cfg.NATSURL != "" {
		if err := validateNATSURL(cfg.NATSURL); err != nil {
			errs = append(errs, ValidationError{Field: "nats_url", Message: err.Error()})
		}
		if strings.TrimSpace(cfg.NATSSubjectPrefix) == "" {
			errs = append(errs, ValidationError{Field: "nats_subject_prefix", Message: "must not be empty when nats_url is set"})
		}
	}

	if !logging.ValidFormat(cfg.LogFormat) {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	errs = append(errs, validateStreams(cfg.Streams)...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateStreams(streams []StreamConfig) []error {
	var errs []error
	urls := make(map[string]int, len(streams))
	ids := make(map[string]int, len(streams))

	for i, s := range streams {
		field := fmt.Sprintf("streams[%d]", i)
		if err := validateURL(s.URL); err != nil {
			errs = append(errs, ValidationError{Field: field + ".url", Message: err.Error()})
		}
		if prev, dup := urls[s.URL]; dup && s.URL != "" {
			errs = append(errs, ValidationError{
				Field:   field + ".url",
				Message: fmt.Sprintf("duplicate of streams[%d]", prev),
			})
		} else {
			urls[s.URL] = i
		}
		if s.ID != "" && !streamIDPattern.MatchString(s.ID) {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("%q must be 1-128 letters, digits, '.', '_' or '-' and not start with '.'", s.ID),
			})
		}
		if s.ID != "" {
			if prev, dup := ids[s.ID]; dup {
				errs = append(errs, ValidationError{
					Field:   field + ".id",
					Message: fmt.Sprintf("duplicate of streams[%d]", prev),
				})
			} else {
				ids[s.ID] = i
			}
		}
	}
	return errs
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	for _, part := range strings.Split(rawURL, ",") {
		u, err := url.Parse(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid URL: %w", err)
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return fmt.Errorf("URL scheme must be nats, tls, ws or wss (got %q)", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("URL must have a host")
		}
	}
	return nil
}
