package cmd

import (
	"BUREAU/metrics"
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one pass of the external database import",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		n, err := newImporter(db, cfg, metrics.New(), log).RunOnce(context.Background())
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new record(s)\n", n)
		return err
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
