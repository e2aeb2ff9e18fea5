package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if result := parseLevel(tc.input); result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestValidFormatAndLevel(t *testing.T) {
	for _, f := range []string{"json", "TEXT"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("xml") {
		t.Error("ValidFormat(xml) = true")
	}
	for _, l := range []string{"debug", "info", "WARN", "error"} {
		if !ValidLevel(l) {
			t.Errorf("ValidLevel(%q) = false", l)
		}
	}
	if ValidLevel("trace") {
		t.Error("ValidLevel(trace) = true")
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if NewLogger(format, "info", false) == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "json", "info")
	logger.Info("cycle_complete", "streams", 3)

	output := buf.String()
	if !strings.Contains(output, `"msg":"cycle_complete"`) {
		t.Errorf("expected JSON message, got: %s", output)
	}
	if !strings.Contains(output, `"streams":3`) {
		t.Errorf("expected attribute, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    string
		dropped  func(*slog.Logger)
		kept     func(*slog.Logger)
		keptText string
	}{
		{"info", func(l *slog.Logger) { l.Debug("hidden") }, func(l *slog.Logger) { l.Info("shown") }, "shown"},
		{"warn", func(l *slog.Logger) { l.Info("hidden") }, func(l *slog.Logger) { l.Warn("shown") }, "shown"},
		{"error", func(l *slog.Logger) { l.Warn("hidden") }, func(l *slog.Logger) { l.Error("shown") }, "shown"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(&buf, "text", tt.level)
			tt.dropped(logger)
			tt.kept(logger)
			if strings.Contains(buf.String(), "hidden") {
				t.Errorf("level %s logged a filtered record: %s", tt.level, buf.String())
			}
			if !strings.Contains(buf.String(), tt.keptText) {
				t.Errorf("level %s dropped a record: %s", tt.level, buf.String())
			}
		})
	}
}

func TestSetDefault(t *testing.T) {
	originalDefault := slog.Default()
	defer slog.SetDefault(originalDefault)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))

	slog.Info("from default logger")
	if !strings.Contains(buf.String(), "from default logger") {
		t.Error("SetDefault did not set the default logger")
	}
}

func TestStderrHandler_WriteSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	h := NewStderrHandler("ffmpeg", "s1", NewLoggerWithWriter(&buf, "text", "debug"), false)

	fmt.Fprint(h, "first line\nsecond ")
	fmt.Fprint(h, "line\r\nthird")

	got := h.RecentLines(10)
	if len(got) != 2 || got[0] != "first line" || got[1] != "second line" {
		t.Fatalf("RecentLines = %q", got)
	}

	h.Flush()
	got = h.RecentLines(10)
	if len(got) != 3 || got[2] != "third" {
		t.Errorf("after Flush RecentLines = %q", got)
	}
}

func TestStderrHandler_LogsOnlyProblemsWhenQuiet(t *testing.T) {
	var buf bytes.Buffer
	h := NewStderrHandler("ffmpeg", "s1", NewLoggerWithWriter(&buf, "text", "debug"), false)

	h.HandleLine("Input #0, mpegts, from 'seg.ts':")
	h.HandleLine("[http @ 0x1] HTTP error 404 Not Found: Server returned 404 Not Found")

	out := buf.String()
	if strings.Contains(out, "Input #0") {
		t.Errorf("informational line logged in quiet mode: %s", out)
	}
	if !strings.Contains(out, "Server returned 404") || !strings.Contains(out, "stream_id=s1") {
		t.Errorf("problem line not logged: %s", out)
	}
}

func TestStderrHandler_RingBuffer(t *testing.T) {
	h := NewStderrHandler("ffprobe", "s1", Discard(), false)
	for i := 0; i < MaxBufferedLines+5; i++ {
		h.HandleLine(fmt.Sprintf("line %d", i))
	}

	got := h.RecentLines(3)
	want := []string{
		fmt.Sprintf("line %d", MaxBufferedLines+2),
		fmt.Sprintf("line %d", MaxBufferedLines+3),
		fmt.Sprintf("line %d", MaxBufferedLines+4),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RecentLines[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if n := len(h.RecentLines(1000)); n != MaxBufferedLines {
		t.Errorf("len = %d, want %d", n, MaxBufferedLines)
	}
}

func TestStderrHandler_Truncation(t *testing.T) {
	h := NewStderrHandler("ffmpeg", "s1", Discard(), false)
	h.HandleLine(strings.Repeat("x", MaxLineLength+10))

	got := h.RecentLines(1)[0]
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Error("long line was not truncated")
	}
}

func TestStderrHandler_Tail(t *testing.T) {
	h := NewStderrHandler("ffmpeg", "s1", Discard(), false)
	if h.Tail(3) != "" {
		t.Error("Tail of empty handler should be empty")
	}
	h.HandleLine("a")
	h.HandleLine("b")
	if got := h.Tail(3); got != "a; b" {
		t.Errorf("Tail = %q", got)
	}
}
