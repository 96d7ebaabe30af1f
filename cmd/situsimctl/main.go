package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"situsim/internal/config"
	"situsim/internal/logging"
	situsim "situsim/pkg/situsim"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultOpener).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// opener hands out a client for one command invocation. The returned release
// func is called when the command is done with it.
type opener func(cfg *config.Config, logger *slog.Logger) (*situsim.Client, func() error, error)

func defaultOpener(cfg *config.Config, logger *slog.Logger) (*situsim.Client, func() error, error) {
	client, err := situsim.New(situsim.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.DBPath,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "situsimctl",
		Short: "Cycle-based multi-agent situated simulation",
		Long: `situsimctl runs situated multi-agent simulations and inspects what they
recorded.

Every cycle all agents perceive the same committed world, decide in
parallel and have their stimuli committed together. Snapshots, run
summaries and agent failures go to the configured store.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("store", "", "Store backend (memory|sqlite)")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace|debug|info|warn)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newRunCmd(open),
		newRunsCmd(open),
		newSnapshotCmd(open),
		newAgentCmd(open),
		newFailuresCmd(open),
	)
	return rootCmd
}

// loadConfig resolves the configuration for a command: defaults, the
// --config file, environment overrides, then the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.Store.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// withClient loads the configuration and runs fn with a client built from it.
func withClient(cmd *cobra.Command, open opener, fn func(*config.Config, *situsim.Client) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	client, release, err := open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()
	return fn(cfg, client)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "situsimctl version %s (commit: %s, built: %s)\n", version, commit, date)
			return err
		},
	}
}
