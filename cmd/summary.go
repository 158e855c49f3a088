package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/storage"
)

// summaryCmd is the cobra command for displaying a high-level cache overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the cached sheet",
	Long: `Display aggregate statistics about the cached sheet rows:
row and player counts, last successful ingest, games per level
and the most active players.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	ov, err := db.GetCacheOverview()
	if err != nil {
		return fmt.Errorf("get overview: %w", err)
	}
	if ov.Rows == 0 {
		fmt.Fprintln(os.Stdout, "No rows cached yet. Run 'versus ingest' to pull the sheet.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n=== Cache Summary ===\n\n")
	fmt.Fprintf(os.Stdout, "  Rows cached   : %d\n", ov.Rows)
	fmt.Fprintf(os.Stdout, "  Players seen  : %d\n", ov.Players)
	fmt.Fprintf(os.Stdout, "  Seeds         : %d\n", ov.Seeds)
	if ov.LastIngest != nil {
		fmt.Fprintf(os.Stdout, "  Last ingest   : %s\n", ov.LastIngest.StartedAt)
	}

	// Level breakdown.
	idx, _, err := loadCachedIndex(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n--- Levels ---\n\n")
	lt := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	lt.Header("LEVEL", "PLAYERS", "BEST PB", "HOLDER")
	for _, level := range aggregator.Levels(idx) {
		board := aggregator.Leaderboard(idx, level, statsOptions())
		if len(board) == 0 {
			continue
		}
		lt.Append(
			level,
			fmt.Sprintf("%d", len(board)),
			fmtSeconds(board[0].Stats.PB),
			board[0].Name,
		)
	}
	lt.Render()

	// Most active players.
	players, err := db.GetTopPlayersByMatches(10)
	if err != nil {
		return fmt.Errorf("get top players: %w", err)
	}
	fmt.Fprintf(os.Stdout, "\n--- Most Active Players ---\n\n")
	pt := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	pt.Header("NAME", "MATCHES", "WINS", "WIN%")
	for _, p := range players {
		pct := 0.0
		if p.Matches > 0 {
			pct = 100.0 * float64(p.Wins) / float64(p.Matches)
		}
		pt.Append(
			p.Name,
			fmt.Sprintf("%d", p.Matches),
			fmt.Sprintf("%d", p.Wins),
			fmt.Sprintf("%.0f%%", pct),
		)
	}
	pt.Render()
	return nil
}
