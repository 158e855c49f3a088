package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/overlay"
	"github.com/pable/versus-overlay/internal/report"
	"github.com/pable/versus-overlay/internal/storage"
)

var (
	cPrompt   = color.New(color.FgCyan, color.Bold)
	cMuted    = color.New(color.Faint)
	cError    = color.New(color.FgRed, color.Bold)
	cWarn     = color.New(color.FgYellow)
	cCmd      = color.New(color.FgYellow, color.Bold)
	cGreeting = color.New(color.Bold)
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive REPL session",
	Long: `Open a session against the cached sheet and the saved overlay state.
Type 'help' for available commands.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

// shellSession holds what the REPL works against.
type shellSession struct {
	db    *storage.DB
	store *overlay.Store
	level string
}

func runShell(_ *cobra.Command, _ []string) error {
	store, err := openLocalStore(true)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	s := &shellSession{db: db, store: store, level: store.State().Level}

	cGreeting.Println("versus shell")
	cMuted.Printf("%d players cached · type 'help' or 'exit'\n", len(store.Players()))
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		cPrompt.Print("versus")
		if s.level != "" {
			cMuted.Printf("[%s]", s.level)
		}
		cMuted.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		tokens := strings.Fields(line)
		cmd, args := tokens[0], tokens[1:]

		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			shellHelp()
		case "players":
			report.PrintPlayers(os.Stdout, store.Players(), nil)
		case "levels":
			for _, l := range store.Levels() {
				fmt.Println(l)
			}
		case "level":
			if len(args) != 1 {
				cError.Fprintln(os.Stderr, "usage: level <level>")
				continue
			}
			s.level = args[0]
		case "stats":
			if len(args) == 0 {
				cError.Fprintln(os.Stderr, "usage: stats <player> [<player>...]")
				continue
			}
			s.stats(args)
		case "board":
			s.board()
		case "state":
			report.PrintState(os.Stdout, store.State())
		case "set":
			if len(args) == 0 {
				cError.Fprintf(os.Stderr, "usage: set <key>=<value> ... (keys: %s)\n", strings.Join(overlay.PatchKeys(), ", "))
				continue
			}
			s.set(args)
		case "reset":
			report.PrintState(os.Stdout, store.Reset())
		case "runs":
			s.runs()
		default:
			cWarn.Fprintf(os.Stderr, "unknown command %q, type 'help'\n", cmd)
		}
	}
	return nil
}

func shellHelp() {
	fmt.Println()
	type entry struct{ cmd, desc string }
	rows := []entry{
		{"players", "list cached players"},
		{"levels", "list levels seen in the sheet"},
		{"level <level>", "select the level used by stats and board"},
		{"stats <player> [...]", "stats for one or more players at the selected level"},
		{"board", "leaderboard at the selected level"},
		{"state", "show the overlay state"},
		{"set <key>=<value> [...]", "update overlay fields"},
		{"reset", "clear the overlay state"},
		{"runs", "recent sheet ingest runs"},
		{"help", "show this message"},
		{"exit / quit", "close the session"},
	}
	for _, r := range rows {
		fmt.Print("  ")
		cCmd.Printf("%-28s", r.cmd)
		fmt.Println(r.desc)
	}
	fmt.Println()
}

func (s *shellSession) needLevel() bool {
	if s.level == "" {
		cError.Fprintln(os.Stderr, "no level selected: use 'level <level>' or 'set level=<level>'")
		return false
	}
	return true
}

func (s *shellSession) stats(players []string) {
	if !s.needLevel() {
		return
	}
	lines := make([]report.StatLine, 0, len(players))
	for _, p := range players {
		st, ok := s.store.Stats(p, s.level)
		lines = append(lines, report.StatLine{Name: p, Stats: st, Found: ok})
	}
	report.PrintStatsTable(os.Stdout, s.level, lines)
}

func (s *shellSession) board() {
	if !s.needLevel() {
		return
	}
	report.PrintLeaderboard(os.Stdout, s.level, s.store.Leaderboard(s.level))
}

func (s *shellSession) set(args []string) {
	p, err := parseAssignments(args)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	st := s.store.ApplyPatch(p, "")
	if p.Level != nil {
		s.level = st.Level
	}
	report.PrintState(os.Stdout, st)
}

func (s *shellSession) runs() {
	runs, err := s.db.ListIngestRuns(10)
	if err != nil {
		cError.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	report.PrintIngestRuns(os.Stdout, runs)
}
