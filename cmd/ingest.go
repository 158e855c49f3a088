package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/ingest"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/storage"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch the match sheet once into the local cache",
	Long: `Fetch the match rows (and seeds, if configured) once and store them in the
SQLite cache. Offline commands (stats, leaderboard, players, shell) read the
cache, and 'serve' restores from it at startup.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	addSheetFlags(ingestCmd)
}

// indexSink keeps the last index handed over by the ingestor.
type indexSink struct {
	idx   model.MatchIndex
	seeds model.Seeds
}

func (s *indexSink) ReplaceIndex(idx model.MatchIndex, seeds model.Seeds) {
	s.idx, s.seeds = idx, seeds
}

func runIngest(cmd *cobra.Command, _ []string) error {
	applySheetFlags()
	client, err := newSheetClient(cmd.Context())
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	sink := &indexSink{}
	run, err := ingest.New(client, sink, db, logger).RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Stored %d rows, %d players, %d seeds from %s\n",
		run.Rows, run.Players, len(sink.seeds), client.SpreadsheetID())
	if levels := aggregator.Levels(sink.idx); len(levels) > 0 {
		fmt.Fprintf(os.Stdout, "Levels: %v\n", levels)
	}
	return nil
}
