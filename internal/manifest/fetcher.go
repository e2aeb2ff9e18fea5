package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// DefaultTimeout bounds each playlist request.
const DefaultTimeout = 10 * time.Second

// maxPlaylistBytes caps how much of a response body is read.
const maxPlaylistBytes = 8 << 20

// FetchError reports a failed playlist retrieval. Status is the HTTP status
// code, or 0 when no response was received.
type FetchError struct {
	URL       string
	Status    int
	Message   string
	MediaType model.MediaType
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s playlist %s: status %d: %s", e.MediaType, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("fetch %s playlist %s: %s", e.MediaType, e.URL, e.Message)
}

// ParseError reports a playlist body that could not be decoded.
type ParseError struct {
	URL       string
	MediaType model.MediaType
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s playlist %s: %v", e.MediaType, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is a fetched media playlist. Variant is set when the requested URL
// was a master playlist and the first variant was followed.
type Result struct {
	Playlist    *Playlist
	PlaylistURL string
	Variant     *Variant
}

// Config holds Fetcher settings.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// Fetcher retrieves playlists over HTTP(S).
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewFetcher creates a Fetcher. A zero Timeout uses DefaultTimeout.
func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:    client,
		timeout:   timeout,
		userAgent: cfg.UserAgent,
	}
}

// Fetch retrieves rawURL. If it is a master playlist the first listed
// variant is resolved and fetched as the media playlist.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	pl, err := f.fetchPlaylist(ctx, rawURL, model.MediaMaster)
	if err != nil {
		return nil, err
	}
	if !pl.IsMaster() {
		return &Result{Playlist: pl, PlaylistURL: rawURL}, nil
	}

	// The first variant is canonical; other renditions are not monitored.
	variant := pl.Variants[0]
	variantURL, err := Resolve(rawURL, variant.URI)
	if err != nil {
		return nil, &ParseError{URL: rawURL, MediaType: model.MediaMaster, Err: err}
	}

	media, err := f.fetchPlaylist(ctx, variantURL, model.MediaVideo)
	if err != nil {
		return nil, err
	}
	if media.IsMaster() {
		return nil, &ParseError{URL: variantURL, MediaType: model.MediaVideo, Err: errors.New("variant is itself a master playlist")}
	}
	return &Result{Playlist: media, PlaylistURL: variantURL, Variant: &variant}, nil
}

func (f *Fetcher) fetchPlaylist(ctx context.Context, rawURL string, mediaType model.MediaType) (*Playlist, error) {
	body, err := f.get(ctx, rawURL, mediaType)
	if err != nil {
		return nil, err
	}
	pl, err := ParseBytes(body)
	if err != nil {
		return nil, &ParseError{URL: rawURL, MediaType: mediaType, Err: err}
	}
	return pl, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, mediaType model.MediaType) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, MediaType: mediaType, Message: err.Error()}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout after %s", f.timeout)
		}
		return nil, &FetchError{URL: rawURL, MediaType: mediaType, Message: msg}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:       rawURL,
			Status:    resp.StatusCode,
			Message:   http.StatusText(resp.StatusCode),
			MediaType: mediaType,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return nil, &FetchError{URL: rawURL, MediaType: mediaType, Message: fmt.Sprintf("read body: %v", err)}
	}
	return body, nil
}
