package model

import "time"

// SnapshotRetention is how long metrics snapshots are kept by the store.
const SnapshotRetention = 7 * 24 * time.Hour

// MetricsSnapshot is one time-series point written per stream per completed
// cycle.
type MetricsSnapshot struct {
	StreamID      string    `json:"streamId"`
	Timestamp     time.Time `json:"timestamp"`
	HealthScore   int       `json:"healthScore"`
	VideoScore    int       `json:"videoScore"`
	AudioScore    int       `json:"audioScore"`
	VideoBitrate  int64     `json:"videoBitrate"`
	AudioBitrate  int64     `json:"audioBitrate"`
	VideoLevel    float64   `json:"videoLevel"`
	AudioLevel    float64   `json:"audioLevel"`
	FPS           float64   `json:"fps"`
	Status        Status    `json:"status"`
	MediaSequence int64     `json:"mediaSequence"`
	SegmentCount  int       `json:"segmentCount"`
	ErrorCount    int       `json:"errorCount"`
}
