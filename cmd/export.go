package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/clock"
	"github.com/pable/versus-overlay/internal/storage"
)

var (
	exportLevel string
	exportOut   string
)

// leaderboardFile is the JSON written by export, read by lower-third and
// bracket graphics that do not talk to the websocket.
type leaderboardFile struct {
	Level       string           `json:"level"`
	GeneratedAt string           `json:"generated_at"`
	Players     []leaderboardRow `json:"players"`
}

type leaderboardRow struct {
	Rank        int     `json:"rank"`
	Name        string  `json:"name"`
	Seed        string  `json:"seed,omitempty"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	PB          string  `json:"pb"`
	PBSeconds   int     `json:"pb_seconds"`
	Average     string  `json:"average"`
	AverageSecs float64 `json:"average_seconds"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a level leaderboard as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportLevel, "level", "l", "", "level to export (required)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("level")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportLevel == "" {
		return errors.New("--level must not be empty")
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	idx, seeds, err := loadCachedIndex(db)
	if err != nil {
		return err
	}

	out := leaderboardFile{
		Level:       exportLevel,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Players:     []leaderboardRow{},
	}
	for i, l := range aggregator.Leaderboard(idx, exportLevel, statsOptions()) {
		out.Players = append(out.Players, leaderboardRow{
			Rank:        i + 1,
			Name:        l.Name,
			Seed:        seeds[l.Name],
			Wins:        l.Stats.Wins,
			Losses:      l.Stats.Losses,
			PB:          fmtSeconds(l.Stats.PB),
			PBSeconds:   l.Stats.PB,
			Average:     clock.Format(l.Stats.AverageTime),
			AverageSecs: l.Stats.AverageTime,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if exportOut == "" {
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}
	if err := os.WriteFile(exportOut, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d players to %s\n", len(out.Players), exportOut)
	return nil
}
