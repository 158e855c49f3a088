package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/clock"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/overlay"
)

// StatLine is one row of the player stats table. Found is false when the
// player has no counted games at the level.
type StatLine struct {
	Name  string
	Stats model.PlayerStats
	Found bool
}

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
}

// PrintStatsTable prints per-player stats at one level.
// Columns: PLAYER | GAMES | W | L | WIN% | 95% CI | PB | AVG | SAMPLE
func PrintStatsTable(w io.Writer, level string, lines []StatLine) {
	fmt.Fprintf(w, "\nLevel: %s\n\n", level)
	table := newTable(w)
	table.Header("PLAYER", "GAMES", "W", "L", "WIN%", "95% CI", "PB", "AVG", "SAMPLE")

	for _, l := range lines {
		if !l.Found {
			table.Append(l.Name, "0", "—", "—", "—", "—", overlay.NoTime, overlay.NoTime, "—")
			continue
		}
		table.Append(statCells(l.Name, l.Stats)...)
	}
	table.Render()
}

// PrintLeaderboard prints every player ranked by PB at one level.
func PrintLeaderboard(w io.Writer, level string, lines []aggregator.PlayerLine) {
	if len(lines) == 0 {
		fmt.Fprintf(w, "No games recorded at level %q.\n", level)
		return
	}
	fmt.Fprintf(w, "\nLeaderboard: %s\n\n", level)
	table := newTable(w)
	table.Header("#", "PLAYER", "GAMES", "W", "L", "WIN%", "95% CI", "PB", "AVG", "SAMPLE")
	for i, l := range lines {
		row := append([]any{strconv.Itoa(i + 1)}, statCells(l.Name, l.Stats)...)
		table.Append(row...)
	}
	table.Render()
}

func statCells(name string, s model.PlayerStats) []any {
	lo, hi := wilsonCI(s.Wins, s.Played())
	return []any{
		name,
		strconv.Itoa(s.Played()),
		strconv.Itoa(s.Wins),
		strconv.Itoa(s.Losses),
		fmt.Sprintf("%.0f%%", s.WinPct()),
		fmt.Sprintf("%.0f-%.0f%%", lo*100, hi*100),
		clock.Format(float64(s.PB)),
		clock.Format(s.AverageTime),
		sampleFlag(s.Played()),
	}
}

// PrintPlayers lists player names with their seed, if any.
func PrintPlayers(w io.Writer, players []string, seeds model.Seeds) {
	if len(players) == 0 {
		fmt.Fprintln(w, "No players loaded yet. Run 'versus ingest' to pull the sheet.")
		return
	}
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	table.Header("PLAYER", "SEED")
	for _, p := range players {
		seed := seeds[p]
		if seed == "" {
			seed = "—"
		}
		table.Append(p, seed)
	}
	table.Render()
	fmt.Fprintf(w, "\n(%d players)\n", len(players))
}

// PrintState prints the broadcast state as a two-column table, left player
// and right player side by side.
func PrintState(w io.Writer, st overlay.State) {
	fmt.Fprintf(w, "\nRound: %s  |  Best of: %s  |  Level: %s\n\n", dash(st.Round), dash(st.BestOf), dash(st.Level))

	table := newTable(w)
	table.Header(" ", "LEFT", "RIGHT")
	table.Append("player", dash(st.PlayerLeft), dash(st.PlayerRight))
	table.Append("seed", dash(st.PlayerLeftSeed), dash(st.PlayerRightSeed))
	table.Append("score", strconv.Itoa(st.ScoreLeft), strconv.Itoa(st.ScoreRight))
	table.Append("W - L", st.PlayerLeftWinLoss, st.PlayerRightWinLoss)
	table.Append("PB", st.PlayerLeftTourneyPB, st.PlayerRightTourneyPB)
	table.Append("avg", st.PlayerLeftAverageTime, st.PlayerRightAverageTime)
	table.Render()

	fmt.Fprintf(w, "\nCasters: %s / %s / %s\n", dash(st.Caster1), dash(st.Caster2), dash(st.Caster3))
}

// PrintIngestRuns prints the ingest log, newest first.
func PrintIngestRuns(w io.Writer, runs []model.IngestRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No ingest runs recorded.")
		return
	}
	table := newTable(w)
	table.Header("ID", "STARTED", "ROWS", "PLAYERS", "RESULT")
	for _, r := range runs {
		result := "ok"
		if !r.OK() {
			result = r.Error
		}
		table.Append(
			strconv.FormatInt(r.ID, 10),
			r.StartedAt,
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Players),
			result,
		)
	}
	table.Render()
}

func dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func sampleFlag(n int) string {
	switch {
	case n >= 20:
		return "OK"
	case n >= 8:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}

// wilsonCI computes the 95% Wilson score confidence interval for a proportion.
// Returns (lo, hi) as fractions in [0, 1].
func wilsonCI(hits, n int) (lo, hi float64) {
	if n == 0 {
		return 0, 1
	}
	z := 1.96
	p := float64(hits) / float64(n)
	nf := float64(n)
	denom := 1 + z*z/nf
	center := (p + z*z/(2*nf)) / denom
	half := z * math.Sqrt(p*(1-p)/nf+z*z/(4*nf*nf)) / denom
	return math.Max(0, center-half), math.Min(1, center+half)
}
