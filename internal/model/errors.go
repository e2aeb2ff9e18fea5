package model

import "time"

// ErrorType classifies a ledger entry. The set is a fixed contract for
// downstream filtering; do not rename or remove members.
type ErrorType string

const (
	ErrManifestRetrieval     ErrorType = "MANIFEST_RETRIEVAL"
	ErrMediaSequence         ErrorType = "MEDIA_SEQUENCE"
	ErrPlaylistSize          ErrorType = "PLAYLIST_SIZE"
	ErrPlaylistContent       ErrorType = "PLAYLIST_CONTENT"
	ErrSegmentContinuity     ErrorType = "SEGMENT_CONTINUITY"
	ErrDiscontinuitySequence ErrorType = "DISCONTINUITY_SEQUENCE"
	ErrStaleManifest         ErrorType = "STALE_MANIFEST"
)

// ErrorTypes lists every member of the enumeration in declaration order.
var ErrorTypes = []ErrorType{
	ErrManifestRetrieval,
	ErrMediaSequence,
	ErrPlaylistSize,
	ErrPlaylistContent,
	ErrSegmentContinuity,
	ErrDiscontinuitySequence,
	ErrStaleManifest,
}

// Valid reports whether t is a member of the enumeration.
func (t ErrorType) Valid() bool {
	for _, known := range ErrorTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MediaType names the playlist level an error was observed on.
type MediaType string

const (
	MediaMaster MediaType = "MASTER"
	MediaVideo  MediaType = "VIDEO"
	MediaAudio  MediaType = "AUDIO"
)

// StreamError is one ledger entry. Entries are appended chronologically and
// never modified afterwards.
type StreamError struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ErrorType ErrorType `json:"errorType"`
	MediaType MediaType `json:"mediaType"`
	Variant   string    `json:"variant,omitempty"`
	Details   string    `json:"details"`
	Code      int       `json:"code,omitempty"`
}
