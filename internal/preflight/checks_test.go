package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func fakeTool(t *testing.T, name, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	body := "#!/bin/sh\necho '" + name + " version " + version + " Copyright (c) the FFmpeg developers'\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func findCheck(r *Result, name string) *Check {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

func TestCheck_String(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  []string
	}{
		{"passed_with_required", Check{Name: "c", Required: 100, Actual: 200, Passed: true}, []string{"✓", "200", "100"}},
		{"failed_check", Check{Name: "c", Required: 100, Actual: 50}, []string{"✗"}},
		{"warning_check", Check{Name: "c", Passed: true, Warning: true, Message: "warning message"}, []string{"⚠", "warning message"}},
		{"passed_with_message_only", Check{Name: "c", Passed: true, Message: "all good"}, []string{"✓", "all good"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.check.String()
			for _, w := range tt.want {
				if !strings.Contains(s, w) {
					t.Errorf("String() = %q, missing %q", s, w)
				}
			}
		})
	}
}

func TestRunAll_AllPass(t *testing.T) {
	dir := t.TempDir()
	result := RunAll(Options{
		FFprobePath:  fakeTool(t, "ffprobe", "6.1"),
		FFmpegPath:   fakeTool(t, "ffmpeg", "6.1"),
		Streams:      1,
		Concurrency:  1,
		DatabasePath: filepath.Join(dir, "db", "streamwatch.db"),
		ThumbnailDir: filepath.Join(dir, "thumbs"),
	})

	for _, name := range []string{"ffprobe", "ffmpeg", "database_dir", "thumbnail_dir"} {
		c := findCheck(result, name)
		if c == nil {
			t.Errorf("check %s missing", name)
			continue
		}
		if !c.Passed {
			t.Errorf("check %s failed: %s", name, c.Message)
		}
	}
	if c := findCheck(result, "ffprobe"); c != nil && !strings.Contains(c.Message, "6.1") {
		t.Errorf("ffprobe message = %q, want version", c.Message)
	}
	if _, err := os.Stat(filepath.Join(dir, "thumbs")); err != nil {
		t.Errorf("thumbnail dir not created: %v", err)
	}
}

func TestRunAll_MissingTool(t *testing.T) {
	result := RunAll(Options{FFprobePath: "/nonexistent/ffprobe"})
	if result.Passed {
		t.Error("RunAll passed with a missing ffprobe")
	}
	c := findCheck(result, "ffprobe")
	if c == nil || c.Passed {
		t.Errorf("ffprobe check = %+v", c)
	}
}

func TestRunAll_SkipsDisabledChecks(t *testing.T) {
	result := RunAll(Options{FFprobePath: fakeTool(t, "ffprobe", "7.0")})
	for _, name := range []string{"ffmpeg", "database_dir", "thumbnail_dir"} {
		if findCheck(result, name) != nil {
			t.Errorf("check %s ran although disabled", name)
		}
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	small := checkFileDescriptors(1, 1)
	large := checkFileDescriptors(100, 4)
	if large.Required <= small.Required {
		t.Errorf("Required did not scale: %d vs %d", small.Required, large.Required)
	}
	if small.Required != 1*4+1*8+100 {
		t.Errorf("Required = %d", small.Required)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ffmpeg version 6.1 Copyright (c) 2000-2023\nbuilt with gcc", "6.1"},
		{"ffprobe version n7.0-12-gabc Copyright", "n7.0-12-gabc"},
		{"", "unknown"},
		{"something else entirely", "unknown"},
	}
	for _, tt := range tests {
		if got := parseVersion(tt.in); got != tt.want {
			t.Errorf("parseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"file_descriptors", "ffmpeg", "ffprobe", "database_dir", "thumbnail_dir", "other"} {
		if suggestFix(name) == "" {
			t.Errorf("suggestFix(%q) is empty", name)
		}
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, &Result{Checks: []Check{
		{Name: "ffprobe", Passed: true, Message: "found"},
		{Name: "ffmpeg", Passed: false, Message: "not found"},
	}})

	out := buf.String()
	if !strings.Contains(out, "Preflight checks:") || !strings.Contains(out, "Fix: install ffmpeg") {
		t.Errorf("output = %q", out)
	}
}
