package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/events"
	"github.com/randomizedcoder/streamwatch/internal/health"
	"github.com/randomizedcoder/streamwatch/internal/media"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/store"
)

// Prober inspects a segment.
type Prober interface {
	Probe(ctx context.Context, url string) (*media.ProbeResult, error)
}

// ThumbnailSaver writes a thumbnail of a segment and returns its path.
type ThumbnailSaver interface {
	Save(ctx context.Context, streamID, url string) (string, error)
}

// Updater applies a mutation to a stored stream.
type Updater interface {
	Update(ctx context.Context, id string, fn func(*model.Stream) error) (*model.Stream, error)
}

// ScoresObserver is told about scores recomputed from probe results.
type ScoresObserver interface {
	ScoresUpdated(streamID string, scores model.Scores)
}

// AnalyzerConfig wires an Analyzer. Thumbs may be nil to disable thumbnails.
type AnalyzerConfig struct {
	Pool      *Pool
	Prober    Prober
	Thumbs    ThumbnailSaver
	Repo      Updater
	Publisher events.Publisher
	Jitter    *JitterSource
	Scores    ScoresObserver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Analyzer turns the newest segment of a stream into probe results, a
// thumbnail and signal events. Work runs on the pool; failures are logged
// and never change stream status.
type Analyzer struct {
	pool   *Pool
	prober Prober
	thumbs ThumbnailSaver
	repo   Updater
	pub    events.Publisher
	jitter *JitterSource
	scores ScoresObserver
	logger *slog.Logger
	now    func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	a := &Analyzer{
		pool:   cfg.Pool,
		prober: cfg.Prober,
		thumbs: cfg.Thumbs,
		repo:   cfg.Repo,
		pub:    cfg.Publisher,
		jitter: cfg.Jitter,
		scores: cfg.Scores,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
	if a.pub == nil {
		a.pub = events.Nop{}
	}
	if a.jitter == nil {
		a.jitter = NewJitterSourceFromTime(DefaultJitterAmplitude)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Submit queues a probe and a thumbnail of segmentURL. It never blocks.
func (a *Analyzer) Submit(streamID, segmentURL string) {
	a.pool.Submit(Task{
		StreamID: streamID,
		Kind:     KindProbe,
		Run: func(ctx context.Context) error {
			return a.probe(ctx, streamID, segmentURL)
		},
	})
	if a.thumbs == nil {
		return
	}
	a.pool.Submit(Task{
		StreamID: streamID,
		Kind:     KindThumbnail,
		Run: func(ctx context.Context) error {
			return a.thumbnail(ctx, streamID, segmentURL)
		},
	})
}

// Forget releases per-stream state of a removed stream.
func (a *Analyzer) Forget(streamID string) {
	a.jitter.Forget(streamID)
}

func (a *Analyzer) probe(ctx context.Context, streamID, segmentURL string) error {
	res, err := a.prober.Probe(ctx, segmentURL)
	if err != nil {
		a.logger.Warn("segment_probe_failed",
			"stream_id", streamID,
			"segment_url", segmentURL,
			"error", err,
		)
		return err
	}

	s, err := a.repo.Update(ctx, streamID, func(s *model.Stream) error {
		s.Stats.Container = res.Container()
		if v := res.Video(); v != nil {
			s.Stats.Video = v
		}
		if au := res.Audio(); au != nil {
			s.Stats.Audio = au
		}
		if fps := res.FPS(); fps > 0 {
			s.Stats.FPS = fps
		}
		s.Scores.Video = health.VideoScore(s.Stats.Video)
		s.Scores.Audio = health.AudioScore(s.Stats.Audio)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		a.logger.Debug("probe_stream_gone", "stream_id", streamID)
		return nil
	}
	if err != nil {
		a.logger.Error("probe_store_failed", "stream_id", streamID, "error", err)
		return err
	}
	if a.scores != nil {
		a.scores.ScoresUpdated(streamID, s.Scores)
	}

	videoBitrate := health.VideoBitrate(s.Stats)
	audioBitrate := health.AudioBitrate(s.Stats)
	a.pub.Publish(events.New(events.KindSignal, streamID, events.Signal{
		VideoLevel:   a.jitter.Apply(streamID, health.VideoLevel(videoBitrate)),
		AudioLevel:   a.jitter.Apply(streamID, health.AudioLevel(audioBitrate)),
		VideoBitrate: videoBitrate,
		AudioBitrate: audioBitrate,
		FPS:          s.Stats.FPS,
		SegmentURL:   segmentURL,
	}, a.now()))
	return nil
}

func (a *Analyzer) thumbnail(ctx context.Context, streamID, segmentURL string) error {
	if _, err := a.thumbs.Save(ctx, streamID, segmentURL); err != nil {
		a.logger.Warn("thumbnail_failed",
			"stream_id", streamID,
			"segment_url", segmentURL,
			"error", err,
		)
		return err
	}

	ref := media.ThumbnailRef(streamID, a.now())
	_, err := a.repo.Update(ctx, streamID, func(s *model.Stream) error {
		s.Thumbnail = ref
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		a.logger.Error("thumbnail_store_failed", "stream_id", streamID, "error", err)
		return err
	}

	a.pub.Publish(events.New(events.KindSprite, streamID, events.Sprite{Thumbnail: ref}, a.now()))
	return nil
}
