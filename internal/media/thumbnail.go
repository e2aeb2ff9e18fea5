package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/logging"
)

// ThumbnailError reports a failed frame extraction. Tail holds the last
// lines ffmpeg wrote to stderr.
type ThumbnailError struct {
	URL  string
	Err  error
	Tail string
}

func (e *ThumbnailError) Error() string {
	if e.Tail != "" {
		return fmt.Sprintf("ffmpeg thumbnail %s: %v: %s", e.URL, e.Err, e.Tail)
	}
	return fmt.Sprintf("ffmpeg thumbnail %s: %v", e.URL, e.Err)
}

func (e *ThumbnailError) Unwrap() error { return e.Err }

// ExtractorConfig configures a FrameExtractor.
type ExtractorConfig struct {
	Binary    string
	UserAgent string
	Timeout   time.Duration
	Seek      time.Duration
	Width     int
	Dir       string
	Logger    *slog.Logger
	Verbose   bool
}

// FrameExtractor grabs a single JPEG frame from a segment with ffmpeg and
// stores it as the stream's thumbnail.
type FrameExtractor struct {
	cfg ExtractorConfig
}

// NewFrameExtractor creates an extractor.
func NewFrameExtractor(cfg ExtractorConfig) *FrameExtractor {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Width <= 0 {
		cfg.Width = 320
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &FrameExtractor{cfg: cfg}
}

// Binary returns the ffmpeg executable used.
func (x *FrameExtractor) Binary() string {
	return x.cfg.Binary
}

// Args returns the ffmpeg arguments used to extract a frame from url.
func (x *FrameExtractor) Args(url string) []string {
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	if x.cfg.UserAgent != "" {
		args = append(args, "-user_agent", x.cfg.UserAgent)
	}
	if x.cfg.Seek > 0 {
		args = append(args, "-ss", strconv.FormatFloat(x.cfg.Seek.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-i", url,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", x.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)
	return args
}

// Extract returns one JPEG frame of url.
func (x *FrameExtractor) Extract(ctx context.Context, streamID, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	stderr := logging.NewStderrHandler("ffmpeg", streamID, x.cfg.Logger, x.cfg.Verbose)
	var stdout bytes.Buffer

	cmd := exec.CommandContext(ctx, x.cfg.Binary, x.Args(url)...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stderr.Flush()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timeout after %s: %w", x.cfg.Timeout, err)
		}
		return nil, &ThumbnailError{URL: url, Err: err, Tail: stderr.Tail(5)}
	}
	if stdout.Len() == 0 {
		return nil, &ThumbnailError{URL: url, Err: errors.New("no frame produced"), Tail: stderr.Tail(5)}
	}
	return stdout.Bytes(), nil
}

// Save extracts a frame of url and writes it to <Dir>/<streamID>.jpg
// atomically. It returns the written path.
func (x *FrameExtractor) Save(ctx context.Context, streamID, url string) (string, error) {
	frame, err := x.Extract(ctx, streamID, url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(x.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	path := filepath.Join(x.cfg.Dir, ThumbnailFile(streamID))
	tmp, err := os.CreateTemp(x.cfg.Dir, "."+streamID+"-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create thumbnail: %w", err)
	}
	if _, err := tmp.Write(frame); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("install thumbnail: %w", err)
	}
	return path, nil
}

// ThumbnailFile is the file name of a stream's thumbnail.
func ThumbnailFile(streamID string) string {
	return streamID + ".jpg"
}

// ThumbnailRef is the URL path a thumbnail written at t is served under. The
// query string changes on every write so clients do not reuse stale images.
func ThumbnailRef(streamID string, t time.Time) string {
	return fmt.Sprintf("/thumbnails/%s?t=%d", ThumbnailFile(streamID), t.UnixMilli())
}
