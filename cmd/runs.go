package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/report"
	"github.com/pable/versus-overlay/internal/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent sheet ingest runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	runs, err := db.ListIngestRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("list ingest runs: %w", err)
	}
	report.PrintIngestRuns(os.Stdout, runs)
	return nil
}
