package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowyard/flowyard/internal/debug"
)

var resyncJSON bool

var resyncCmd = &cobra.Command{
	Use:   "resync <external-id>",
	Short: "Re-reconcile a single work item",
	Long: `Resync fetches one work item's full change history and rebuilds its
transition set from scratch. Reconciliation is idempotent: resyncing an
unchanged item leaves its transitions (ids included) untouched.`,
	Args: cobra.ExactArgs(1),
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

		report, err := s.SyncDemand(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if resyncJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		debug.PrintNormal("%s: %d created, %d closed, %d pruned\n", args[0], report.Created, report.Closed, report.Pruned)
		if report.DiscardStateChanged {
			debug.PrintNormal("discard state changed\n")
		}
		return nil
	},
}

func init() {
	resyncCmd.Flags().BoolVar(&resyncJSON, "json", false, "Output report as JSON")
	rootCmd.AddCommand(resyncCmd)
}
