// Package health computes the composite scores and signal levels reported for
// each stream. Everything here is a pure function of its inputs.
package health

import "github.com/randomizedcoder/streamwatch/internal/model"

// Penalties applied by HealthScore.
const (
	penaltyStale      = 30
	penaltyJump       = 5
	maxJumpPenalty    = 20
	penaltyReset      = 10
	maxResetPenalty   = 30
	penaltyError      = 2
	maxErrorPenalty   = 20
	penaltyStatusErr  = 40
	penaltyStatusDown = 50
)

// Scores returned when no probe information exists for a track.
const (
	UnknownVideoScore = 50
	UnknownAudioScore = 50
)

// Input holds the cumulative stream fields the health score is derived from.
type Input struct {
	IsStale        bool
	SequenceJumps  int
	SequenceResets int
	TotalErrors    int
	Status         model.Status
}

// InputFrom extracts the scorer input from a stream.
func InputFrom(s *model.Stream) Input {
	return Input{
		IsStale:        s.Health.IsStale,
		SequenceJumps:  s.Health.SequenceJumps,
		SequenceResets: s.Health.SequenceResets,
		TotalErrors:    s.Health.TotalErrors,
		Status:         s.Status,
	}
}

// HealthScore computes the 0–100 health score.
//
// The counters are cumulative for the lifetime of the stream, so the score
// does not recover on its own once the capped penalties are reached.
func HealthScore(in Input) int {
	score := 100
	if in.IsStale {
		score -= penaltyStale
	}
	score -= min(in.SequenceJumps*penaltyJump, maxJumpPenalty)
	score -= min(in.SequenceResets*penaltyReset, maxResetPenalty)
	score -= min(in.TotalErrors*penaltyError, maxErrorPenalty)
	switch in.Status {
	case model.StatusError:
		score -= penaltyStatusErr
	case model.StatusOffline:
		score -= penaltyStatusDown
	}
	return clampScore(score)
}

// VideoScore scores the probed video track.
func VideoScore(v *model.VideoInfo) int {
	if v == nil {
		return UnknownVideoScore
	}
	score := 100
	if v.Codec == "" {
		score -= 20
	}
	if v.Width < 720 {
		score -= 10
	}
	return clampScore(score)
}

// AudioScore scores the probed audio track.
func AudioScore(a *model.AudioInfo) int {
	if a == nil {
		return UnknownAudioScore
	}
	score := 100
	if a.Codec == "" {
		score -= 20
	}
	if a.SampleRate < 44100 {
		score -= 10
	}
	return clampScore(score)
}

// Compute returns all three scores for s.
func Compute(s *model.Stream) model.Scores {
	return model.Scores{
		Health: HealthScore(InputFrom(s)),
		Video:  VideoScore(s.Stats.Video),
		Audio:  AudioScore(s.Stats.Audio),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
