// Package model defines the persisted records of streamwatch: monitored
// streams, their error ledger and the per-cycle metrics snapshots.
package model

import "time"

// Status is the coarse state of a monitored stream.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
	StatusStale   Status = "stale"
)

// DefaultStaleThreshold is the staleness threshold applied to new streams.
const DefaultStaleThreshold = 7 * time.Second

// InitialSequence marks a media sequence that has not been observed yet.
const InitialSequence int64 = -1

// Stream is a monitored HLS stream together with everything the engine has
// learned about it.
type Stream struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Status      Status        `json:"status"`
	Health      Health        `json:"health"`
	Stats       Stats         `json:"stats"`
	Scores      Scores        `json:"scores"`
	ErrorLog    []StreamError `json:"errorLog"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	LastChecked time.Time     `json:"lastChecked"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Health holds continuity and staleness state derived from manifest polling.
// SequenceJumps, SequenceResets and TotalErrors never decrease.
type Health struct {
	IsStale               bool          `json:"isStale"`
	LastManifestUpdate    time.Time     `json:"lastManifestUpdate"`
	TimeSinceLastUpdate   time.Duration `json:"timeSinceLastUpdate"`
	StaleThreshold        time.Duration `json:"staleThreshold"`
	MediaSequence         int64         `json:"mediaSequence"`
	PreviousMediaSequence int64         `json:"previousMediaSequence"`
	SequenceJumps         int           `json:"sequenceJumps"`
	SequenceResets        int           `json:"sequenceResets"`
	DiscontinuitySequence int64         `json:"discontinuitySequence"`
	DiscontinuityCount    int           `json:"discontinuityCount"`
	SegmentCount          int           `json:"segmentCount"`
	TargetDuration        float64       `json:"targetDuration"`
	PlaylistType          string        `json:"playlistType"`
	TotalErrors           int           `json:"totalErrors"`
	TimeSinceLastError    time.Duration `json:"timeSinceLastError"`
}

// Stats holds variant attributes from the master playlist and the most
// recent successful probe results.
type Stats struct {
	Bandwidth  int64          `json:"bandwidth"`
	Resolution string         `json:"resolution"`
	FPS        float64        `json:"fps"`
	Video      *VideoInfo     `json:"video,omitempty"`
	Audio      *AudioInfo     `json:"audio,omitempty"`
	Container  *ContainerInfo `json:"container,omitempty"`
}

// VideoInfo describes the probed video track.
type VideoInfo struct {
	Codec      string `json:"codec"`
	Profile    string `json:"profile"`
	Level      int    `json:"level"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixFmt     string `json:"pixFmt"`
	ColorSpace string `json:"colorSpace"`
	BitRate    int64  `json:"bitRate"`
}

// AudioInfo describes the probed audio track.
type AudioInfo struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sampleRate"`
	BitRate    int64  `json:"bitRate"`
}

// ContainerInfo describes the probed segment container.
type ContainerInfo struct {
	FormatName string  `json:"formatName"`
	Duration   float64 `json:"duration"`
	Size       int64   `json:"size"`
	BitRate    int64   `json:"bitRate"`
}

// Scores are the composite scores computed at the end of every cycle.
type Scores struct {
	Health int `json:"healthScore"`
	Video  int `json:"videoScore"`
	Audio  int `json:"audioScore"`
}

// NewStream returns a stream in its initial state.
func NewStream(id, name, url string, now time.Time) *Stream {
	return &Stream{
		ID:     id,
		Name:   name,
		URL:    url,
		Status: StatusOffline,
		Health: Health{
			StaleThreshold:        DefaultStaleThreshold,
			MediaSequence:         InitialSequence,
			PreviousMediaSequence: InitialSequence,
		},
		CreatedAt: now.UTC(),
	}
}

// Clone returns a deep copy so callers can mutate without sharing slices or
// probe structs with the original.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	c := *s
	if s.ErrorLog != nil {
		c.ErrorLog = make([]StreamError, len(s.ErrorLog))
		copy(c.ErrorLog, s.ErrorLog)
	}
	if s.Stats.Video != nil {
		v := *s.Stats.Video
		c.Stats.Video = &v
	}
	if s.Stats.Audio != nil {
		a := *s.Stats.Audio
		c.Stats.Audio = &a
	}
	if s.Stats.Container != nil {
		ct := *s.Stats.Container
		c.Stats.Container = &ct
	}
	return &c
}
