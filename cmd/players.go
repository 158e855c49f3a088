package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/report"
	"github.com/pable/versus-overlay/internal/storage"
)

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "List every player in the cached sheet",
	Args:  cobra.NoArgs,
	RunE:  runPlayers,
}

func runPlayers(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	idx, seeds, err := loadCachedIndex(db)
	if err != nil {
		return err
	}
	report.PrintPlayers(os.Stdout, aggregator.Players(idx), seeds)
	return nil
}
