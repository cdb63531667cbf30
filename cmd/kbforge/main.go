// Package main provides the kbforge binary entry point.
// Kbforge turns raw source documents into cross-linked knowledge-base
// articles: a staged pipeline extracts and analyzes the source, plans
// and drafts articles against configured completion endpoints, then
// enriches, validates and gates them before publication.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	// Completion provider adapters self-register on import.
	_ "github.com/glyphworks/kbforge/llm/providers"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kbforge"
)

func main() {
	// Pipeline code returns errors rather than panicking; this is the
	// process-boundary catch for everything else.
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kbforge: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "kbforge",
		Short:         "Knowledge-base content pipeline",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: `Kbforge turns raw source documents into cross-linked knowledge-base
articles with QA metadata.

Each run walks a fixed stage pipeline: extract, analyze, outline,
prewrite, generate, enrichment (evidence tags, style, related links,
gap fill, code normalization), validation, cross-article QA, adaptive
adjustment, publish gating, versioning and review queueing.

Articles, QA reports and version snapshots persist to NATS JetStream
when store.nats_url is configured, and to an in-memory store otherwise.`,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCommand(flags))
	cmd.AddCommand(batchCommand(flags))
	cmd.AddCommand(watchCommand(flags))
	cmd.AddCommand(configCommand(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// setupLogger configures the process logger on stderr. Level names
// follow slog conventions; unrecognized values keep the info default.
func setupLogger(logLevel string) *slog.Logger {
	var level slog.Level // zero value is LevelInfo
	_ = level.UnmarshalText([]byte(logLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
