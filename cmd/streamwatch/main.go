// Package main provides the streamwatch CLI entry point.
//
// streamwatch polls live HLS playlists, records continuity and staleness
// problems, probes the newest segment of each stream with FFprobe and serves
// the results over Prometheus metrics and a WebSocket event feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/streamwatch
var version = "dev"

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			code = 2
		}
	}()

	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}
