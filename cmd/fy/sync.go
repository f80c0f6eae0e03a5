package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowyard/flowyard/internal/debug"
)

var syncJSON bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync all work items for the configured project",
	Long: `Sync lists the tracker's work items (incrementally, from the last sync
watermark), fetches each item's change history, and reconciles it into
stage-transition intervals. Per-item failures are reported at the end and
never abort the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, store, err := buildSyncer(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		result, err := s.SyncProject(cmd.Context())
		if err != nil {
			return err
		}

		if syncJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		debug.PrintNormal("Synced %d demands (%d failed, %d removed)\n", result.Synced, result.Failed, result.Removed)
		debug.PrintNormal("Transitions: %d written, %d pruned\n", result.TransitionsWritten, result.TransitionsPruned)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", e.ExternalID, e.Err)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Output result as JSON")
	rootCmd.AddCommand(syncCmd)
}
