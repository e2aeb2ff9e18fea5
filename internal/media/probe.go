// Package media wraps the external ffprobe and ffmpeg tools used for deep
// segment analysis.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// DefaultTimeout bounds a single probe or frame extraction.
const DefaultTimeout = 30 * time.Second

// ProbeResult is the decoded output of ffprobe -show_format -show_streams.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream is one elementary stream reported by ffprobe.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Profile      string `json:"profile"`
	Level        int    `json:"level"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	ColorSpace   string `json:"color_space"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	BitRate      string `json:"bit_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// ProbeFormat is the container metadata reported by ffprobe.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// ProbeError reports a failed ffprobe invocation.
type ProbeError struct {
	URL    string
	Err    error
	Output string
}

func (e *ProbeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("ffprobe %s: %v: %s", e.URL, e.Err, e.Output)
	}
	return fmt.Sprintf("ffprobe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober runs ffprobe against segment URLs.
type Prober struct {
	binary    string
	userAgent string
	timeout   time.Duration
}

// NewProber creates a prober. An empty binary means "ffprobe" from PATH; a
// zero timeout uses DefaultTimeout.
func NewProber(binary, userAgent string, timeout time.Duration) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{binary: binary, userAgent: userAgent, timeout: timeout}
}

// Binary returns the ffprobe executable used.
func (p *Prober) Binary() string {
	return p.binary
}

// Probe inspects the media at url.
func (p *Prober) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &ProbeError{URL: url, Err: errors.New("empty url")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json"}
	if p.userAgent != "" {
		args = append(args, "-user_agent", p.userAgent)
	}
	args = append(args, "--", url)

	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timeout after %s: %w", p.timeout, err)
		}
		return nil, &ProbeError{URL: url, Err: err, Output: strings.TrimSpace(stderr.String())}
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, &ProbeError{URL: url, Err: fmt.Errorf("parse output: %w", err)}
	}
	return &result, nil
}

// Video returns the first video stream as model info, or nil.
func (r *ProbeResult) Video() *model.VideoInfo {
	s := r.first("video")
	if s == nil {
		return nil
	}
	return &model.VideoInfo{
		Codec:      s.CodecName,
		Profile:    s.Profile,
		Level:      s.Level,
		Width:      s.Width,
		Height:     s.Height,
		PixFmt:     s.PixFmt,
		ColorSpace: s.ColorSpace,
		BitRate:    parseInt(s.BitRate),
	}
}

// Audio returns the first audio stream as model info, or nil.
func (r *ProbeResult) Audio() *model.AudioInfo {
	s := r.first("audio")
	if s == nil {
		return nil
	}
	return &model.AudioInfo{
		Codec:      s.CodecName,
		Channels:   s.Channels,
		SampleRate: int(parseInt(s.SampleRate)),
		BitRate:    parseInt(s.BitRate),
	}
}

// Container returns the container metadata.
func (r *ProbeResult) Container() *model.ContainerInfo {
	return &model.ContainerInfo{
		FormatName: r.Format.FormatName,
		Duration:   parseFloat(r.Format.Duration),
		Size:       parseInt(r.Format.Size),
		BitRate:    parseInt(r.Format.BitRate),
	}
}

// FPS returns the video frame rate, preferring the average rate over the
// base rate. It is 0 when unknown.
func (r *ProbeResult) FPS() float64 {
	s := r.first("video")
	if s == nil {
		return 0
	}
	if fps := ParseFrameRate(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return ParseFrameRate(s.RFrameRate)
}

func (r *ProbeResult) first(codecType string) *ProbeStream {
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, codecType) {
			return &r.Streams[i]
		}
	}
	return nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func ParseFrameRate(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		return nonNegative(parseFloat(num))
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return nonNegative(math.Round(n/d*1000) / 1000)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func parseFloat(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" || v == "N/A" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

func parseInt(v string) int64 {
	f := parseFloat(v)
	if f < 0 {
		return 0
	}
	return int64(f)
}

// FindFFprobe returns the ffprobe that sits next to ffmpegPath, or "ffprobe"
// from PATH.
func FindFFprobe(ffmpegPath string) string {
	const ffmpegName = "ffmpeg"
	dir, base := filepath.Split(ffmpegPath)
	if dir != "" && base == ffmpegName {
		candidate := filepath.Join(dir, "ffprobe")
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	return "ffprobe"
}

// Available reports whether binary can be found.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
