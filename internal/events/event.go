// Package events carries engine notifications to subscribers.
//
// Delivery is best effort and at most once: publishers never block the
// engine and subscribers that fall behind lose events.
package events

import (
	"encoding/json"
	"time"
)

// Kind identifies an event type.
type Kind string

const (
	KindUpdate  Kind = "update"
	KindSignal  Kind = "signal"
	KindSprite  Kind = "sprite"
	KindAdded   Kind = "added"
	KindDeleted Kind = "deleted"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindUpdate, KindSignal, KindSprite, KindAdded, KindDeleted}

// Event is one notification.
type Event struct {
	Kind      Kind      `json:"type"`
	StreamID  string    `json:"streamId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// New builds an event stamped with now.
func New(kind Kind, streamID string, data any, now time.Time) Event {
	return Event{Kind: kind, StreamID: streamID, Timestamp: now.UTC(), Data: data}
}

// Encode returns the JSON wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Signal is the payload of a signal event. Levels include display jitter and
// are never stored.
type Signal struct {
	VideoLevel   float64 `json:"videoLevel"`
	AudioLevel   float64 `json:"audioLevel"`
	VideoBitrate int64   `json:"videoBitrate"`
	AudioBitrate int64   `json:"audioBitrate"`
	FPS          float64 `json:"fps"`
	SegmentURL   string  `json:"segmentUrl"`
}

// Sprite is the payload of a sprite event.
type Sprite struct {
	Thumbnail string `json:"thumbnail"`
}

// Publisher accepts events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// Multi fans an event out to several publishers in order.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
