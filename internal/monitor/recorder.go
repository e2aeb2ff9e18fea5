package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/health"
	"github.com/randomizedcoder/streamwatch/internal/model"
)

// SnapshotWriter appends metrics snapshots.
type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, snap model.MetricsSnapshot) error
}

// Recorder writes one snapshot per stream per completed cycle.
type Recorder struct {
	w      SnapshotWriter
	logger *slog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(w SnapshotWriter, logger *slog.Logger) *Recorder {
	return &Recorder{w: w, logger: logger}
}

// Snapshot builds the time-series point for s at now. Levels are derived
// from the best known bitrates without jitter.
func Snapshot(s *model.Stream, now time.Time) model.MetricsSnapshot {
	videoBitrate := health.VideoBitrate(s.Stats)
	audioBitrate := health.AudioBitrate(s.Stats)
	return model.MetricsSnapshot{
		StreamID:      s.ID,
		Timestamp:     now.UTC(),
		HealthScore:   s.Scores.Health,
		VideoScore:    s.Scores.Video,
		AudioScore:    s.Scores.Audio,
		VideoBitrate:  videoBitrate,
		AudioBitrate:  audioBitrate,
		VideoLevel:    health.VideoLevel(videoBitrate),
		AudioLevel:    health.AudioLevel(audioBitrate),
		FPS:           s.Stats.FPS,
		Status:        s.Status,
		MediaSequence: s.Health.MediaSequence,
		SegmentCount:  s.Health.SegmentCount,
		ErrorCount:    s.Health.TotalErrors,
	}
}

// Record appends a snapshot of s. Failures are logged and otherwise ignored.
func (r *Recorder) Record(ctx context.Context, s *model.Stream, now time.Time) {
	if err := r.w.AppendSnapshot(ctx, Snapshot(s, now)); err != nil {
		r.logger.Warn("snapshot_write_failed",
			"stream_id", s.ID,
			"error", err,
		)
	}
}
