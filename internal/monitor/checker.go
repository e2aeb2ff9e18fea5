// Package monitor runs the polling cycle: it fetches each stream's playlist,
// applies continuity and staleness rules, maintains the error ledger, scores
// the stream, records a snapshot and emits an update event.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/events"
	"github.com/randomizedcoder/streamwatch/internal/health"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/store"
)

// Repository is the persistence the checker needs.
type Repository interface {
	Get(ctx context.Context, id string) (*model.Stream, error)
	Update(ctx context.Context, id string, fn func(*model.Stream) error) (*model.Stream, error)
	SnapshotWriter
}

// Fetcher retrieves a stream's media playlist.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*manifest.Result, error)
}

// DeepAnalyzer accepts segment analysis work. Submit must not block.
type DeepAnalyzer interface {
	Submit(streamID, segmentURL string)
}

// CheckerConfig wires a Checker.
type CheckerConfig struct {
	Repo      Repository
	Fetcher   Fetcher
	Tracker   *Tracker
	Deep      DeepAnalyzer
	Publisher events.Publisher
	Observer  Observer
	Logger    *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Checker performs one stream's check within a cycle.
type Checker struct {
	repo     Repository
	fetcher  Fetcher
	tracker  *Tracker
	deep     DeepAnalyzer
	pub      events.Publisher
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	ledger   *Ledger
	analyzer *Analyzer
	recorder *Recorder
}

// NewChecker creates a checker.
func NewChecker(cfg CheckerConfig) *Checker {
	c := &Checker{
		repo:     cfg.Repo,
		fetcher:  cfg.Fetcher,
		tracker:  cfg.Tracker,
		deep:     cfg.Deep,
		pub:      cfg.Publisher,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if c.tracker == nil {
		c.tracker = NewTracker()
	}
	if c.pub == nil {
		c.pub = events.Nop{}
	}
	if c.observer == nil {
		c.observer = NopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.ledger = NewLedger(c.observer)
	c.analyzer = NewAnalyzer(c.ledger)
	c.recorder = NewRecorder(c.repo, c.logger)
	return c
}

// Tracker returns the poll state owned by this checker.
func (c *Checker) Tracker() *Tracker {
	return c.tracker
}

// Check runs one cycle for the stream with id. Fetch and playlist problems
// are recorded on the stream and do not produce an error; the returned error
// reports persistence failures only. A stream deleted mid-check is ignored.
func (c *Checker) Check(ctx context.Context, id string) error {
	s, err := c.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.tracker.Forget(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load stream %s: %w", id, err)
	}

	prev := c.tracker.Get(id)

	fetchStart := time.Now()
	res, fetchErr := c.fetcher.Fetch(ctx, s.URL)
	failedAt := model.MediaType("")
	if fetchErr != nil {
		failedAt = failureMediaType(fetchErr)
	}
	c.observer.FetchCompleted(time.Since(fetchStart), failedAt)

	now := c.now()
	if fetchErr != nil {
		return c.recordFailure(ctx, id, now, FailureEntry(fetchErr))
	}

	variant := res.PlaylistURL
	var analysis Analysis
	updated, err := c.repo.Update(ctx, id, func(st *model.Stream) error {
		if v := res.Variant; v != nil {
			st.Stats.Bandwidth = v.Bandwidth
			st.Stats.Resolution = v.Resolution
			if v.FrameRate > 0 && st.Stats.FPS == 0 {
				st.Stats.FPS = v.FrameRate
			}
		}
		analysis = c.analyzer.Analyze(st, prev, res.Playlist, variant, now)
		c.finish(st, now)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		c.tracker.Forget(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save stream %s: %w", id, err)
	}

	if analysis.Failed {
		c.logger.Warn("playlist_empty",
			"stream_id", id,
			"playlist", variant,
		)
		c.publishUpdate(updated, now)
		return nil
	}

	if seg, ok := res.Playlist.LastSegment(); ok && c.deep != nil {
		segURL, err := manifest.Resolve(res.PlaylistURL, seg.URI)
		if err != nil {
			c.logger.Warn("segment_url_invalid", "stream_id", id, "uri", seg.URI, "error", err)
		} else {
			c.deep.Submit(id, segURL)
		}
	}

	c.recorder.Record(ctx, updated, now)
	c.publishUpdate(updated, now)
	c.tracker.Set(id, analysis.Next)

	c.logger.Debug("stream_checked",
		"stream_id", id,
		"status", updated.Status,
		"media_sequence", updated.Health.MediaSequence,
		"health_score", updated.Scores.Health,
	)
	return nil
}

// Fail records an unexpected failure of a check as a MANIFEST_RETRIEVAL
// error and forces status=error.
func (c *Checker) Fail(ctx context.Context, id string, cause error) error {
	return c.recordFailure(ctx, id, c.now(), model.StreamError{
		ErrorType: model.ErrManifestRetrieval,
		MediaType: model.MediaMaster,
		Details:   fmt.Sprintf("check failed: %v", cause),
	})
}

func (c *Checker) recordFailure(ctx context.Context, id string, now time.Time, entry model.StreamError) error {
	updated, err := c.repo.Update(ctx, id, func(st *model.Stream) error {
		c.ledger.Append(st, now, entry)
		st.Status = model.StatusError
		c.finish(st, now)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		c.tracker.Forget(id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save stream %s: %w", id, err)
	}

	c.logger.Warn("manifest_fetch_failed",
		"stream_id", id,
		"error_type", entry.ErrorType,
		"media_type", entry.MediaType,
		"code", entry.Code,
		"details", entry.Details,
	)
	c.publishUpdate(updated, now)
	return nil
}

// finish applies the end-of-cycle bookkeeping common to every path.
func (c *Checker) finish(st *model.Stream, now time.Time) {
	RefreshAges(st, now)
	st.Scores = health.Compute(st)
	st.LastChecked = now.UTC()
	c.observer.ScoresUpdated(st.ID, st.Scores)
}

func (c *Checker) publishUpdate(st *model.Stream, now time.Time) {
	c.pub.Publish(events.New(events.KindUpdate, st.ID, st.Clone(), now))
}

// FailureEntry maps a fetch or parse failure to its ledger entry.
func FailureEntry(err error) model.StreamError {
	var fe *manifest.FetchError
	if errors.As(err, &fe) {
		return model.StreamError{
			ErrorType: model.ErrManifestRetrieval,
			MediaType: fe.MediaType,
			Variant:   fe.URL,
			Details:   fe.Message,
			Code:      fe.Status,
		}
	}
	var pe *manifest.ParseError
	if errors.As(err, &pe) {
		return model.StreamError{
			ErrorType: model.ErrPlaylistContent,
			MediaType: pe.MediaType,
			Variant:   pe.URL,
			Details:   pe.Err.Error(),
		}
	}
	return model.StreamError{
		ErrorType: model.ErrManifestRetrieval,
		MediaType: model.MediaMaster,
		Details:   err.Error(),
	}
}

func failureMediaType(err error) model.MediaType {
	var fe *manifest.FetchError
	if errors.As(err, &fe) {
		return fe.MediaType
	}
	var pe *manifest.ParseError
	if errors.As(err, &pe) {
		return pe.MediaType
	}
	return model.MediaMaster
}
