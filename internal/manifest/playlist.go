// Package manifest retrieves and parses HLS playlists.
//
// Playlist grammar is delegated to github.com/grafov/m3u8; this package only
// maps its output onto the small structure the monitor needs and resolves
// master → variant indirection.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/grafov/m3u8"
)

// Playlist types as reported in Playlist.PlaylistType. Live playlists carry
// no type.
const (
	TypeLive  = ""
	TypeEvent = "EVENT"
	TypeVOD   = "VOD"
)

// Playlist is a parsed master or media playlist. A master playlist has
// Variants and no Segments.
type Playlist struct {
	Variants              []Variant
	Segments              []Segment
	MediaSequence         int64
	TargetDuration        float64
	PlaylistType          string
	DiscontinuitySequence int64
	EndList               bool
}

// Variant is one rendition listed by a master playlist.
type Variant struct {
	URI        string
	Bandwidth  int64
	Resolution string
	FrameRate  float64
}

// Segment is one media segment listed by a media playlist.
type Segment struct {
	URI           string
	Duration      float64
	Discontinuity bool
}

// IsMaster reports whether the playlist lists variants.
func (p *Playlist) IsMaster() bool {
	return len(p.Variants) > 0
}

// DiscontinuityCount counts segments flagged discontinuous in this playlist.
func (p *Playlist) DiscontinuityCount() int {
	n := 0
	for _, s := range p.Segments {
		if s.Discontinuity {
			n++
		}
	}
	return n
}

// LastSegment returns the most recent segment, or false for empty playlists.
func (p *Playlist) LastSegment() (Segment, bool) {
	if len(p.Segments) == 0 {
		return Segment{}, false
	}
	return p.Segments[len(p.Segments)-1], true
}

// IsLive reports whether the playlist is still being appended to.
func (p *Playlist) IsLive() bool {
	return p.PlaylistType != TypeVOD && !p.EndList
}

// Parse decodes raw playlist text.
func Parse(r io.Reader) (*Playlist, error) {
	pl, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		return nil, err
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, errors.New("unexpected master playlist type")
		}
		return fromMaster(master)
	case m3u8.MEDIA:
		media, ok := pl.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, errors.New("unexpected media playlist type")
		}
		return fromMedia(media), nil
	default:
		return nil, fmt.Errorf("unknown playlist type %d", listType)
	}
}

// ParseBytes is Parse for an in-memory body.
func ParseBytes(body []byte) (*Playlist, error) {
	return Parse(bytes.NewReader(body))
}

func fromMaster(master *m3u8.MasterPlaylist) (*Playlist, error) {
	out := &Playlist{}
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		out.Variants = append(out.Variants, Variant{
			URI:        v.URI,
			Bandwidth:  int64(v.Bandwidth),
			Resolution: v.Resolution,
			FrameRate:  v.FrameRate,
		})
	}
	if len(out.Variants) == 0 {
		return nil, errors.New("master playlist lists no variants")
	}
	return out, nil
}

func fromMedia(media *m3u8.MediaPlaylist) *Playlist {
	out := &Playlist{
		MediaSequence:         int64(media.SeqNo),
		TargetDuration:        float64(media.TargetDuration),
		DiscontinuitySequence: int64(media.DiscontinuitySeq),
		EndList:               media.Closed,
	}
	switch media.MediaType {
	case m3u8.EVENT:
		out.PlaylistType = TypeEvent
	case m3u8.VOD:
		out.PlaylistType = TypeVOD
	}
	// The decoder keeps segments in a fixed-capacity buffer; unused slots
	// are nil.
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		out.Segments = append(out.Segments, Segment{
			URI:           seg.URI,
			Duration:      seg.Duration,
			Discontinuity: seg.Discontinuity,
		})
	}
	return out
}

// Resolve resolves ref against base. Absolute references are returned as is.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
