package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/health"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/monitor"
)

// CheckReport is the result of a one-off playlist check.
type CheckReport struct {
	URL            string              `json:"url"`
	PlaylistURL    string              `json:"playlistUrl,omitempty"`
	Variant        *manifest.Variant   `json:"variant,omitempty"`
	Status         model.Status        `json:"status"`
	MediaSequence  int64               `json:"mediaSequence"`
	SegmentCount   int                 `json:"segmentCount"`
	TargetDuration float64             `json:"targetDuration"`
	PlaylistType   string              `json:"playlistType"`
	Discontinuity  int                 `json:"discontinuityCount"`
	LastSegment    string              `json:"lastSegment,omitempty"`
	HealthScore    int                 `json:"healthScore"`
	Errors         []model.StreamError `json:"errors"`
}

// Check fetches and analyzes one playlist without persisting anything and
// writes the report to w as JSON. Fetch failures are part of the report;
// the returned error covers encoding problems only.
func Check(ctx context.Context, f monitor.Fetcher, url string, w io.Writer) (*CheckReport, error) {
	now := time.Now()
	s := model.NewStream("check", url, url, now)
	ledger := monitor.NewLedger(nil)
	report := &CheckReport{URL: url}

	res, err := f.Fetch(ctx, url)
	if err != nil {
		ledger.Append(s, now, monitor.FailureEntry(err))
		s.Status = model.StatusError
	} else {
		report.PlaylistURL = res.PlaylistURL
		if res.Variant != nil {
			v := *res.Variant
			report.Variant = &v
			s.Stats.Bandwidth = v.Bandwidth
			s.Stats.Resolution = v.Resolution
			s.Stats.FPS = v.FrameRate
		}
		monitor.NewAnalyzer(ledger).Analyze(s, monitor.NewTracker().Get(s.ID), res.Playlist, res.PlaylistURL, now)
		if seg, ok := res.Playlist.LastSegment(); ok {
			if u, err := manifest.Resolve(res.PlaylistURL, seg.URI); err == nil {
				report.LastSegment = u
			}
		}
	}

	report.Status = s.Status
	report.MediaSequence = s.Health.MediaSequence
	report.SegmentCount = s.Health.SegmentCount
	report.TargetDuration = s.Health.TargetDuration
	report.PlaylistType = s.Health.PlaylistType
	report.Discontinuity = s.Health.DiscontinuityCount
	report.HealthScore = health.HealthScore(health.InputFrom(s))
	report.Errors = s.ErrorLog
	if report.Errors == nil {
		report.Errors = []model.StreamError{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return report, fmt.Errorf("encode report: %w", err)
	}
	return report, nil
}
