package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dropForce bool
	dropState bool
)

// dropCmd deletes the cache database file.
var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the cache database",
	Long: `Permanently delete the SQLite cache database. Cached sheet rows, seeds and the
ingest log are lost; run 'versus ingest' afterwards to rebuild. With --state the
overlay state snapshot is deleted too.`,
	Args: cobra.NoArgs,
	RunE: runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
	dropCmd.Flags().BoolVar(&dropState, "state", false, "also delete the overlay state snapshot")
}

func runDrop(cmd *cobra.Command, args []string) error {
	targets := []string{cfg.DBPath, cfg.DBPath + "-wal", cfg.DBPath + "-shm"}
	if dropState {
		targets = append(targets, cfg.StatePath)
	}
	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete: %s\n", cfg.DBPath)
		if dropState {
			fmt.Fprintf(os.Stderr, "and the overlay state: %s\n", cfg.StatePath)
		}
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}

	removed := 0
	for _, path := range targets {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("remove %s: %w", path, err)
		}
		removed++
		fmt.Fprintf(os.Stdout, "Deleted: %s\n", path)
	}
	if removed == 0 {
		fmt.Fprintln(os.Stdout, "Nothing to drop.")
	}
	return nil
}
