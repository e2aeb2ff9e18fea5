// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll verifies.
type Options struct {
	FFprobePath string
	FFmpegPath  string // empty skips the ffmpeg check (thumbnails disabled)

	Streams     int
	Concurrency int

	DatabasePath string
	ThumbnailDir string // empty skips the directory check
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	result.add(checkFileDescriptors(opts.Streams, opts.Concurrency))
	result.add(checkBinary("ffprobe", opts.FFprobePath))
	if opts.FFmpegPath != "" {
		result.add(checkBinary("ffmpeg", opts.FFmpegPath))
	}
	if opts.DatabasePath != "" {
		result.add(checkWritableDir("database_dir", filepath.Dir(opts.DatabasePath)))
	}
	if opts.ThumbnailDir != "" {
		result.add(checkWritableDir("thumbnail_dir", opts.ThumbnailDir))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(streams, concurrency int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}

	// Each stream holds up to two HTTP connections per cycle; each analysis
	// task a child process with pipes and a socket. Plus server overhead.
	required := streams*4 + concurrency*8 + 100
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d streams)", actual, required, streams),
	}
}

// checkBinary verifies a tool is available and working.
func checkBinary(name, path string) Check {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, parseVersion(string(output))),
	}
}

// parseVersion extracts the version from "ffmpeg version 6.1 Copyright ...".
func parseVersion(output string) string {
	first, _, _ := strings.Cut(output, "\n")
	parts := strings.Fields(first)
	if len(parts) >= 3 && parts[1] == "version" {
		return parts[2]
	}
	return "unknown"
}

// checkWritableDir creates dir if needed and verifies a file can be written.
func checkWritableDir(name, dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{Name: name, Passed: false, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())

	return Check{Name: name, Passed: true, Message: fmt.Sprintf("%s writable", dir)}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "ffmpeg", "ffprobe":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg) or set --ffmpeg/--ffprobe"
	case "database_dir", "thumbnail_dir":
		return "fix directory permissions or choose another path"
	default:
		return "see documentation"
	}
}
