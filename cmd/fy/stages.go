package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var stagesJSON bool

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the canonical stages known to this company",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		stages, err := store.ListStages(cmd.Context(), cfg.CompanyID)
		if err != nil {
			return err
		}

		if stagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stages)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tINTEGRATION\tNAME\tTRASHCAN")
		for _, s := range stages {
			trashcan := ""
			if s.Trashcan {
				trashcan = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.IntegrationIdentity, s.Name, trashcan)
		}
		return w.Flush()
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "Output stages as JSON")
	rootCmd.AddCommand(stagesCmd)
}
