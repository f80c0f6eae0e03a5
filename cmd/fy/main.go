// Command fy is the flowyard CLI: it syncs demands from external issue
// trackers and reconciles their stage-transition history.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowyard/flowyard/internal/config"
	"github.com/flowyard/flowyard/internal/debug"
	"github.com/flowyard/flowyard/internal/notify"
	"github.com/flowyard/flowyard/internal/storage"
	"github.com/flowyard/flowyard/internal/storage/memory"
	"github.com/flowyard/flowyard/internal/storage/mysql"
	"github.com/flowyard/flowyard/internal/syncer"
	"github.com/flowyard/flowyard/internal/telemetry"
	"github.com/flowyard/flowyard/internal/tracker"

	// Tracker adapters register themselves.
	_ "github.com/flowyard/flowyard/internal/tracker/jira"
	_ "github.com/flowyard/flowyard/internal/tracker/pipeboard"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configPath  string
	ephemeral   bool
	verboseFlag bool
	quietFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "fy",
	Short: "Sync and reconcile demand flow from external issue trackers",
	Long: `flowyard pulls work items and their state-change histories from external
issue trackers (Jira, Pipeboard) and reconciles them into canonical
stage-transition intervals for flow metrics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./flowyard.yaml)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Run against an in-memory store (nothing persists)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
}

func main() {
	ctx := context.Background()

	if err := telemetry.Init(ctx, "flowyard", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer telemetry.Shutdown(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the --ephemeral override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		cfg.Ephemeral = true
	}
	return cfg, nil
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Ephemeral {
		return memory.New(), nil
	}
	return mysql.New(ctx, cfg.DSN)
}

// buildSyncer wires a ready-to-run syncer: store, tracker, mappings,
// notifier. The caller closes the returned store.
func buildSyncer(ctx context.Context, cfg *config.Config) (*syncer.Syncer, storage.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	trk, err := tracker.New(cfg.Tracker)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if err := trk.Init(ctx, store); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if err := trk.Validate(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	mappings, err := config.LoadStageMappings(cfg.StageMappings)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	s := &syncer.Syncer{
		Store:     store,
		Tracker:   trk,
		CompanyID: cfg.CompanyID,
		ProjectID: cfg.ProjectID,
		TeamID:    cfg.TeamID,
		Mappings:  mappings,
		Notifier:  notify.NewNotifier(store, notify.NewDispatcher(cfg.WebhookURL)),
		PageSize:  cfg.PageSize,
		Workers:   cfg.Workers,
	}
	return s, store, nil
}
