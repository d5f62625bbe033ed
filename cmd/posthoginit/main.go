package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/posthoginit/internal/config"
	"github.com/vango-dev/posthoginit/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "posthoginit",
		Short: "Deferred, consent-aware PostHog initialization",
		Long: `posthoginit mounts a component that initializes PostHog after first paint.

The component waits for the host loop to go idle (at most 1500ms) or, when
the host has no idle scheduler, for a 600ms timer. Unmounting before then
skips initialization. Failures are logged and never retried.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads posthoginit.json from dir, or returns defaults when the
// file does not exist.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
