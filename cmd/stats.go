package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/report"
	"github.com/pable/versus-overlay/internal/storage"
)

var statsLevel string

var statsCmd = &cobra.Command{
	Use:   "stats <player> [<player>...]",
	Short: "Show player stats at one level from the cached sheet",
	Long: `Compute win/loss, tournament PB and average time for each player at the
given level, the same figures the overlay displays.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank every player at one level by PB",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func init() {
	statsCmd.Flags().StringVarP(&statsLevel, "level", "l", "", "level to report (required)")
	_ = statsCmd.MarkFlagRequired("level")
	leaderboardCmd.Flags().StringVarP(&statsLevel, "level", "l", "", "level to rank (required)")
	_ = leaderboardCmd.MarkFlagRequired("level")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsLevel == "" {
		return errors.New("--level must not be empty")
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	idx, _, err := loadCachedIndex(db)
	if err != nil {
		return err
	}
	lines := make([]report.StatLine, 0, len(args))
	for _, name := range args {
		s, ok := aggregator.ComputeStats(idx, name, statsLevel, statsOptions())
		lines = append(lines, report.StatLine{Name: name, Stats: s, Found: ok})
	}
	report.PrintStatsTable(os.Stdout, statsLevel, lines)
	return nil
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	if statsLevel == "" {
		return errors.New("--level must not be empty")
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	idx, _, err := loadCachedIndex(db)
	if err != nil {
		return err
	}
	report.PrintLeaderboard(os.Stdout, statsLevel, aggregator.Leaderboard(idx, statsLevel, statsOptions()))
	return nil
}
