package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/streamwatch/internal/config"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/orchestrator"
)

// errUnhealthy is returned when a checked stream is not online.
var errUnhealthy = errors.New("stream is not healthy")

func newCheckCommand() *cobra.Command {
	defaults := config.DefaultConfig()
	var timeout time.Duration
	var userAgent string

	cmd := &cobra.Command{
		Use:   "check URL",
		Short: "Fetch and analyze one playlist, print a JSON report",
		Long: `check fetches URL once (following the first variant of a master
playlist), applies the playlist checks and prints the result as JSON. Nothing
is stored. The exit status is non-zero unless the stream is online.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher := manifest.NewFetcher(manifest.Config{
				Timeout:   timeout,
				UserAgent: userAgent,
			})
			report, err := orchestrator.Check(cmd.Context(), fetcher, args[0], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if report.Status != model.StatusOnline {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "fetch-timeout", defaults.FetchTimeout, "Timeout of each playlist request")
	cmd.Flags().StringVar(&userAgent, "user-agent", defaults.UserAgent, "HTTP User-Agent header")
	return cmd
}
