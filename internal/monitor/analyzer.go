package monitor

import (
	"fmt"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
)

// MinLiveSegments is the smallest window a live playlist should advertise.
const MinLiveSegments = 3

// Analysis is the outcome of comparing one manifest against the previous
// cycle.
type Analysis struct {
	// Next is the poll state to commit if the cycle completes.
	Next PollState

	// Failed is set when the manifest is unusable and the cycle must stop.
	Failed bool

	Stale  bool
	Jumped bool
	Reset  bool
}

// Analyzer applies continuity and staleness rules to a stream.
type Analyzer struct {
	ledger *Ledger
}

// NewAnalyzer returns an analyzer that records findings in ledger.
func NewAnalyzer(ledger *Ledger) *Analyzer {
	return &Analyzer{ledger: ledger}
}

// Analyze updates s.Health and s.Status from pl, given the state left by the
// previous cycle. variant identifies the media playlist in ledger entries.
func (a *Analyzer) Analyze(s *model.Stream, prev PollState, pl *manifest.Playlist, variant string, now time.Time) Analysis {
	h := &s.Health
	cur := pl.MediaSequence
	out := Analysis{Next: prev}

	h.PreviousMediaSequence = prev.LastMediaSequence
	h.MediaSequence = cur

	if cur == prev.LastMediaSequence {
		out.Next.ConsecutiveStales++
		elapsed := now.Sub(prev.LastPollTime)
		if elapsed > h.StaleThreshold {
			out.Stale = true
			h.IsStale = true
			s.Status = model.StatusStale
			a.ledger.Append(s, now, model.StreamError{
				ErrorType: model.ErrStaleManifest,
				MediaType: model.MediaVideo,
				Variant:   variant,
				Details: fmt.Sprintf("media sequence %d unchanged for %dms (threshold %dms)",
					cur, elapsed.Milliseconds(), h.StaleThreshold.Milliseconds()),
			})
		} else if s.Status != model.StatusStale {
			s.Status = model.StatusOnline
		}
	} else {
		h.IsStale = false
		s.Status = model.StatusOnline
		out.Next.ConsecutiveStales = 0
		h.LastManifestUpdate = now.UTC()
	}

	if !prev.Initial() {
		switch {
		case cur > prev.LastMediaSequence+1:
			gap := cur - (prev.LastMediaSequence + 1)
			out.Jumped = true
			h.SequenceJumps++
			a.ledger.Append(s, now, model.StreamError{
				ErrorType: model.ErrMediaSequence,
				MediaType: model.MediaVideo,
				Variant:   variant,
				Details: fmt.Sprintf("media sequence jumped from %d to %d (gap %d)",
					prev.LastMediaSequence, cur, gap),
			})
		case cur < prev.LastMediaSequence:
			out.Reset = true
			h.SequenceResets++
			a.ledger.Append(s, now, model.StreamError{
				ErrorType: model.ErrMediaSequence,
				MediaType: model.MediaVideo,
				Variant:   variant,
				Details: fmt.Sprintf("media sequence reset from %d to %d",
					prev.LastMediaSequence, cur),
			})
		}
	}

	h.DiscontinuityCount = pl.DiscontinuityCount()
	if pl.DiscontinuitySequence != h.DiscontinuitySequence {
		if !prev.Initial() {
			a.ledger.Append(s, now, model.StreamError{
				ErrorType: model.ErrDiscontinuitySequence,
				MediaType: model.MediaVideo,
				Variant:   variant,
				Details: fmt.Sprintf("discontinuity sequence changed from %d to %d",
					h.DiscontinuitySequence, pl.DiscontinuitySequence),
			})
		}
		h.DiscontinuitySequence = pl.DiscontinuitySequence
	}

	h.SegmentCount = len(pl.Segments)
	h.TargetDuration = pl.TargetDuration
	h.PlaylistType = pl.PlaylistType

	if len(pl.Segments) == 0 {
		out.Failed = true
		s.Status = model.StatusError
		a.ledger.Append(s, now, model.StreamError{
			ErrorType: model.ErrPlaylistContent,
			MediaType: model.MediaVideo,
			Variant:   variant,
			Details:   "media playlist contains no segments",
		})
		return out
	}

	if pl.IsLive() && len(pl.Segments) < MinLiveSegments {
		a.ledger.Append(s, now, model.StreamError{
			ErrorType: model.ErrPlaylistSize,
			MediaType: model.MediaVideo,
			Variant:   variant,
			Details: fmt.Sprintf("live playlist lists %d segments, expected at least %d",
				len(pl.Segments), MinLiveSegments),
		})
	}

	out.Next.LastMediaSequence = cur
	out.Next.LastPollTime = now
	return out
}
