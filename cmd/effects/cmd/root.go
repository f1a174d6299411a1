// Package cmd implements the effects CLI commands.
//
// The root command carries the global flags and dispatches to subcommands
// (inspect, prefetch, simulate, ledger).
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/go-drift/effects/cmd/effects/internal/cache"
	"github.com/go-drift/effects/pkg/config"
	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/telemetry"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	CacheDir   string
	Verbose    bool
	LogFormat  string // "text" | "json"
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the effects CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "effects",
		Short: "Inspect and dry-run animation scenes",
		Long: `effects works with animation scene packages outside a host app.

It parses scene manifests, fills the download cache, runs the full player
lifecycle against a recording engine and reads the crash ledger.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats)
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts))
			cache.SetCacheDir(opts.CacheDir)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to effects.yaml")
	cmd.PersistentFlags().StringVar(&opts.CacheDir, "cache-dir", "", "override cache directory (default: ~/.effects)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newPrefetchCommand(opts))
	cmd.AddCommand(newSimulateCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))

	return cmd
}

// Execute runs the CLI with the process arguments.
func Execute() error {
	err := NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func newLogger(w io.Writer, opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// store loads the configuration named by --config. A missing file yields
// the defaults overlaid with the environment.
func (o *RootOptions) store() (*config.Store, error) {
	s, err := config.Open(o.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return s, nil
}

func (o *RootOptions) cacheRoot(cfg *config.Config) (string, error) {
	return cache.Root(cfg.Fetch.CacheDir)
}

// openLedger opens the configured crash ledger, creating its directory.
func (o *RootOptions) openLedger(cfg *config.Config) (*downgrade.Ledger, error) {
	path := cfg.Downgrade.LedgerPath
	if path == "" {
		root, err := o.cacheRoot(cfg)
		if err != nil {
			return nil, err
		}
		path = cache.LedgerPath(root)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	return downgrade.OpenLedger(path)
}

// startTelemetry installs the configured trace exporter. The returned
// function flushes it.
func startTelemetry(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		slog.Warn("telemetry disabled", slog.Any("error", err))
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry flush failed", slog.Any("error", err))
		}
	}
}
