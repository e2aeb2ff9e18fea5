package logging

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a captured line before
	// truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is how many recent lines a StderrHandler keeps.
	MaxBufferedLines = 100
)

// StderrHandler captures the stderr of an external tool run. It keeps the
// most recent lines in a ring buffer for error reports and logs lines that
// look like problems. It implements io.Writer so it can be assigned to
// exec.Cmd.Stderr directly.
type StderrHandler struct {
	tool     string
	streamID string
	logger   *slog.Logger
	verbose  bool

	mu      sync.Mutex
	partial []byte
	buffer  []string
	bufIdx  int
	count   int
}

// NewStderrHandler creates a handler for one invocation of tool on behalf of
// streamID.
func NewStderrHandler(tool, streamID string, logger *slog.Logger, verbose bool) *StderrHandler {
	return &StderrHandler{
		tool:     tool,
		streamID: streamID,
		logger:   logger,
		verbose:  verbose,
		buffer:   make([]string, MaxBufferedLines),
	}
}

// Write splits p into lines and handles each complete one.
func (h *StderrHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(string(h.partial[:i]), "\r"))
		h.partial = h.partial[i+1:]
	}
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = h.partial[:0]
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *StderrHandler) Flush() {
	h.mu.Lock()
	rest := string(h.partial)
	h.partial = nil
	h.mu.Unlock()
	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleReader reads r line by line until EOF.
func (h *StderrHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, MaxLineLength), MaxLineLength)
	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
}

// HandleLine records one line.
func (h *StderrHandler) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.count++
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "tool_stderr",
		"tool", h.tool,
		"stream_id", h.streamID,
		"line", line,
	)
}

// classifyLine picks a log level for a line of ffmpeg/ffprobe output.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "[error]") ||
		strings.Contains(lower, "error") && strings.Contains(lower, "failed") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "server returned") ||
		strings.Contains(lower, "invalid data found") {
		return slog.LevelWarn
	}
	if strings.Contains(lower, "[warning]") ||
		strings.Contains(lower, "skip") {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.count {
		n = h.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// Tail joins the last n lines for inclusion in an error message.
func (h *StderrHandler) Tail(n int) string {
	return strings.Join(h.RecentLines(n), "; ")
}
