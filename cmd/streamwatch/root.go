package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/streamwatch/internal/config"
	"github.com/randomizedcoder/streamwatch/internal/logging"
	"github.com/randomizedcoder/streamwatch/internal/orchestrator"
)

func newRootCommand() *cobra.Command {
	var flags *config.Flags

	rootCmd := &cobra.Command{
		Use:   "streamwatch [flags] [URL...]",
		Short: "Live HLS stream health monitor",
		Long: `streamwatch polls HLS playlists on a fixed interval and tracks media
sequence continuity, staleness and playlist problems per stream. Streams come
from the config file and from URL arguments.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, flags, args)
		},
	}

	flags = config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newRunCommand() *cobra.Command {
	var flags *config.Flags

	cmd := &cobra.Command{
		Use:   "run [flags] [URL...]",
		Short: "Run the monitoring engine (default)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, flags, args)
		},
	}
	flags = config.RegisterFlags(cmd.Flags())
	return cmd
}

// runEngine resolves the configuration and runs the orchestrator until a
// signal arrives.
func runEngine(cmd *cobra.Command, flags *config.Flags, args []string) error {
	cfg, err := flags.Resolve(args)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	logging.SetDefault(logger)

	printBanner(cmd.OutOrStdout(), cfg)

	logger.Info("starting",
		"version", version,
		"streams", len(cfg.Streams),
		"config", cfg.Path,
		"listen_addr", cfg.ListenAddr,
	)

	orch := orchestrator.New(cfg, logger, orchestrator.Options{
		Version: version,
		// Flags and URL arguments keep winning over a reloaded file.
		Overrides: func(next *config.Config) {
			flags.Apply(next)
			for _, u := range args {
				next.Streams = append(next.Streams, config.StreamConfig{URL: u})
			}
		},
		Output:        cmd.OutOrStdout(),
		HandleSignals: true,
	})
	if err := orch.Run(cmd.Context()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "streamwatch %s\n", version)
		},
	}
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                           streamwatch                             ║")
	fmt.Fprintln(w, "║              Live HLS Stream Health Monitoring                    ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Streams:     %d\n", len(cfg.Streams))
	fmt.Fprintf(w, "  Interval:    %s\n", cfg.PollInterval)
	fmt.Fprintf(w, "  Database:    %s\n", cfg.DatabasePath)
	fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.ListenAddr)
	fmt.Fprintf(w, "  Events:      ws://%s/ws\n", cfg.ListenAddr)
	if cfg.DisableThumbnails {
		fmt.Fprintln(w, "  Thumbnails:  disabled")
	}
	if cfg.NATSURL != "" {
		fmt.Fprintf(w, "  NATS:        %s (%s.*)\n", cfg.NATSURL, cfg.NATSSubjectPrefix)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
