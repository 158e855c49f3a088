package aggregator

import (
	"math"
	"testing"

	"github.com/pable/versus-overlay/internal/model"
)

// makeRow builds a sheet row for winner vs loser. games holds up to five
// {level, winnerTime, loserTime} triples.
func makeRow(ncs, winner, loser string, games ...[3]string) model.Row {
	var r model.Row
	r[model.ColNCS] = ncs
	r[model.ColWinner] = winner
	r[model.ColLoser] = loser
	for i, g := range games {
		r[model.ColLevel+i] = g[0]
		r[model.ColWinnerTime+i] = g[1]
		r[model.ColLoserTime+i] = g[2]
	}
	return r
}

func countMatch(matches []*model.Match, m *model.Match) int {
	n := 0
	for _, x := range matches {
		if x == m {
			n++
		}
	}
	return n
}

func TestMatchFromRow_ColumnOffsets(t *testing.T) {
	cells := make([]string, model.RowWidth)
	for i := range cells {
		cells[i] = string(rune('a' + i))
	}
	m := MatchFromRow(model.NewRow(cells...))

	if m.NCS != "f" || m.Winner != "g" || m.Loser != "m" {
		t.Fatalf("unexpected header fields: %+v", m)
	}
	for i, g := range m.Games {
		if g.Level != cells[i] {
			t.Errorf("game %d level = %q, want %q", i, g.Level, cells[i])
		}
		if g.WinnerTime != cells[i+7] {
			t.Errorf("game %d winnerTime = %q, want %q", i, g.WinnerTime, cells[i+7])
		}
		if g.LoserTime != cells[i+13] {
			t.Errorf("game %d loserTime = %q, want %q", i, g.LoserTime, cells[i+13])
		}
	}
}

func TestMatchFromRow_ShortRow(t *testing.T) {
	// Sheets omits trailing empty cells.
	m := MatchFromRow(model.NewRow("1-1", "1-2", "", "", "", "R1", "alice", "0:01:30"))
	if m.Loser != "" {
		t.Errorf("expected empty loser, got %q", m.Loser)
	}
	if m.Games[0].WinnerTime != "0:01:30" || m.Games[0].LoserTime != "" {
		t.Errorf("unexpected game 0: %+v", m.Games[0])
	}
	if m.Games[2].Played() {
		t.Error("game 2 should not be played")
	}
}

func TestBuildIndex_EachPlayerGetsMatchOnce(t *testing.T) {
	rows := []model.Row{
		makeRow("R1", "alice", "bob", [3]string{"1-1", "0:01:00", "0:01:10"}),
		makeRow("R2", "carol", "alice", [3]string{"1-1", "0:00:58", "0:01:05"}),
		makeRow("R3", "bob", "carol", [3]string{"1-2", "0:02:00", "0:02:30"}),
	}
	idx := BuildIndex(rows)

	if idx.Players() != 3 {
		t.Fatalf("expected 3 players, got %d", idx.Players())
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if len(idx[name]) != 2 {
			t.Errorf("%s: expected 2 matches, got %d", name, len(idx[name]))
		}
	}
	for _, matches := range idx {
		for _, m := range matches {
			if c := countMatch(idx[m.Winner], m); c != 1 {
				t.Errorf("winner %s has match %s %d times", m.Winner, m.NCS, c)
			}
			if c := countMatch(idx[m.Loser], m); c != 1 {
				t.Errorf("loser %s has match %s %d times", m.Loser, m.NCS, c)
			}
		}
	}
	// Source row order is kept.
	if idx["alice"][0].NCS != "R1" || idx["alice"][1].NCS != "R2" {
		t.Errorf("alice matches out of order: %s, %s", idx["alice"][0].NCS, idx["alice"][1].NCS)
	}
}

func TestBuildIndex_SelfMatchListedOnce(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "alice", [3]string{"1-1", "1:00", "1:10"})})
	if len(idx["alice"]) != 1 {
		t.Errorf("expected 1 entry, got %d", len(idx["alice"]))
	}
}

func TestBuildIndex_RebuildReplaces(t *testing.T) {
	all := []model.Row{
		makeRow("R1", "alice", "bob", [3]string{"1-1", "1:00", "1:10"}),
		makeRow("R2", "carol", "dave", [3]string{"1-1", "1:00", "1:10"}),
		makeRow("R3", "alice", "carol", [3]string{"1-1", "1:00", "1:10"}),
	}
	first := BuildIndex(all)
	if first.Players() != 4 {
		t.Fatalf("expected 4 players, got %d", first.Players())
	}

	second := BuildIndex(all[:1])
	if second.Players() != 2 {
		t.Fatalf("expected 2 players after rebuild, got %d", second.Players())
	}
	if _, ok := second["carol"]; ok {
		t.Error("carol should not survive a rebuild without her rows")
	}
	if len(second["alice"]) != 1 {
		t.Errorf("alice: expected 1 match, got %d", len(second["alice"]))
	}
	// Repeated ingestion of the same rows does not duplicate.
	again := BuildIndex(all)
	if len(again["alice"]) != 2 {
		t.Errorf("alice: expected 2 matches on re-ingest, got %d", len(again["alice"]))
	}
}

func TestComputeStats_UnknownPlayer(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "bob", [3]string{"1-1", "1:00", "1:10"})})
	if _, ok := ComputeStats(idx, "zed", "1-1", Options{}); ok {
		t.Error("expected absent stats for unknown player")
	}
}

func TestComputeStats_NoGamesAtLevel(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "bob", [3]string{"1-1", "1:00", "1:10"})})
	if _, ok := ComputeStats(idx, "alice", "1-2", Options{}); ok {
		t.Error("expected absent stats for level with no games")
	}
	if _, ok := ComputeStats(idx, "alice", "", Options{}); ok {
		t.Error("expected absent stats for empty level")
	}
}

func TestComputeStats_LevelIsCaseSensitive(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "bob", [3]string{"World 1", "1:00", "1:10"})})
	if _, ok := ComputeStats(idx, "alice", "world 1", Options{}); ok {
		t.Error("level match must be exact")
	}
	if _, ok := ComputeStats(idx, "alice", "World 1", Options{}); !ok {
		t.Error("expected stats for exact level")
	}
}

func TestComputeStats_PBAndAverage(t *testing.T) {
	// alice: 120s (loses to 100s) and 90s (beats 95s) at the same level.
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob",
			[3]string{"1-1", "0:02:00", "0:01:40"},
			[3]string{"1-2", "0:03:00", "0:03:30"},
		),
		makeRow("R2", "carol", "alice",
			[3]string{"1-1", "0:01:35", "0:01:30"},
		),
	})

	s, ok := ComputeStats(idx, "alice", "1-1", Options{})
	if !ok {
		t.Fatal("expected stats for alice")
	}
	if s.PB != 90 {
		t.Errorf("PB: want 90, got %d", s.PB)
	}
	if math.Abs(s.AverageTime-105) > 1e-9 {
		t.Errorf("AverageTime: want 105, got %f", s.AverageTime)
	}
	if s.Wins != 1 || s.Losses != 1 {
		t.Errorf("W/L: want 1-1, got %d-%d", s.Wins, s.Losses)
	}
}

func TestComputeStats_UsesMatchRoleNotGameOutcome(t *testing.T) {
	// bob lost the match but was faster in this game; the win is per game.
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob", [3]string{"1-1", "0:01:10", "0:01:00"}),
	})
	bob, _ := ComputeStats(idx, "bob", "1-1", Options{})
	if bob.Wins != 1 || bob.Losses != 0 || bob.PB != 60 {
		t.Errorf("bob: unexpected %+v", bob)
	}
	alice, _ := ComputeStats(idx, "alice", "1-1", Options{})
	if alice.Wins != 0 || alice.Losses != 1 || alice.PB != 70 {
		t.Errorf("alice: unexpected %+v", alice)
	}
}

func TestComputeStats_TieIsLoss(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "bob", [3]string{"1-1", "1:00", "1:00"})})
	for _, p := range []string{"alice", "bob"} {
		s, _ := ComputeStats(idx, p, "1-1", Options{})
		if s.Wins != 0 || s.Losses != 1 {
			t.Errorf("%s: tie should count as loss, got %+v", p, s)
		}
	}
}

func TestComputeStats_MissingTimesGuarded(t *testing.T) {
	// Game 1: bob has no time. Game 2: alice has no time.
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob",
			[3]string{"1-1", "0:01:00", ""},
			[3]string{"1-1", "", "0:01:20"},
		),
	})

	alice, ok := ComputeStats(idx, "alice", "1-1", Options{})
	if !ok {
		t.Fatal("expected stats for alice")
	}
	if alice.Played() != 1 || alice.Wins != 1 || alice.PB != 60 {
		t.Errorf("alice: want one counted win at 60s, got %+v", alice)
	}

	bob, _ := ComputeStats(idx, "bob", "1-1", Options{})
	if bob.Played() != 1 || bob.Wins != 1 || bob.PB != 80 {
		t.Errorf("bob: want one counted win at 80s, got %+v", bob)
	}
}

func TestComputeStats_OnlyMissingTimesIsAbsent(t *testing.T) {
	idx := BuildIndex([]model.Row{makeRow("R1", "alice", "bob", [3]string{"1-1", "", "0:01:20"})})
	if _, ok := ComputeStats(idx, "alice", "1-1", Options{}); ok {
		t.Error("a player with no recorded time should have absent stats")
	}
}

func TestComputeStats_MalformedTimeTreatedAsMissing(t *testing.T) {
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob",
			[3]string{"1-1", "DNF", "0:01:20"},
			[3]string{"1-1", "0:01:00", "0:01:20"},
		),
	})
	alice, _ := ComputeStats(idx, "alice", "1-1", Options{})
	if alice.Played() != 1 || alice.PB != 60 {
		t.Errorf("alice: want one counted game, got %+v", alice)
	}
	bob, _ := ComputeStats(idx, "bob", "1-1", Options{})
	if bob.Played() != 2 || bob.Wins != 1 {
		t.Errorf("bob: want 1-1, got %+v", bob)
	}
}

func TestComputeStats_LegacyZeroTimes(t *testing.T) {
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob",
			[3]string{"1-1", "", "0:01:20"},
		),
	})
	legacy := Options{Legacy: true}

	alice, ok := ComputeStats(idx, "alice", "1-1", legacy)
	if !ok {
		t.Fatal("legacy mode counts games without a time")
	}
	if alice.PB != 0 || alice.Wins != 1 || alice.AverageTime != 0 {
		t.Errorf("alice legacy: want instant win with PB 0, got %+v", alice)
	}
	bob, _ := ComputeStats(idx, "bob", "1-1", legacy)
	if bob.Wins != 0 || bob.Losses != 1 || bob.PB != 80 {
		t.Errorf("bob legacy: want loss at 80s, got %+v", bob)
	}
}

func TestComputeStats_SelfMatch(t *testing.T) {
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "alice", [3]string{"1-1", "0:01:00", "0:01:30"}),
	})

	st, _ := ComputeStats(idx, "alice", "1-1", Options{})
	if st.Played() != 1 || st.Wins != 1 || st.PB != 60 {
		t.Errorf("self match: want one win at 60s, got %+v", st)
	}

	st, _ = ComputeStats(idx, "alice", "1-1", Options{Legacy: true})
	if st.Played() != 2 || st.Wins != 1 || st.Losses != 1 {
		t.Errorf("legacy self match: want scored from both sides, got %+v", st)
	}
	if st.PB != 60 || st.AverageTime != 75 {
		t.Errorf("legacy self match: want PB 60 avg 75, got %+v", st)
	}
}

func TestPlayersAndLevels(t *testing.T) {
	idx := BuildIndex([]model.Row{
		makeRow("R1", "carol", "alice", [3]string{"1-2", "1:00", "1:10"}, [3]string{"1-1", "1:00", "1:10"}),
		makeRow("R2", "bob", "", [3]string{"2-1", "1:00", ""}),
	})
	players := Players(idx)
	want := []string{"alice", "bob", "carol"}
	if len(players) != len(want) {
		t.Fatalf("players: want %v, got %v", want, players)
	}
	for i := range want {
		if players[i] != want[i] {
			t.Errorf("players[%d]: want %s, got %s", i, want[i], players[i])
		}
	}
	levels := Levels(idx)
	if len(levels) != 3 || levels[0] != "1-1" || levels[2] != "2-1" {
		t.Errorf("levels: unexpected %v", levels)
	}
}

func TestLeaderboard_OrderedByPB(t *testing.T) {
	idx := BuildIndex([]model.Row{
		makeRow("R1", "alice", "bob", [3]string{"1-1", "1:00", "1:30"}),
		makeRow("R2", "carol", "dave", [3]string{"1-1", "0:50", "2:00"}),
		makeRow("R3", "erin", "frank", [3]string{"1-2", "0:10", "0:20"}),
	})
	board := Leaderboard(idx, "1-1", Options{})
	if len(board) != 4 {
		t.Fatalf("expected 4 players at 1-1, got %d", len(board))
	}
	order := []string{"carol", "alice", "bob", "dave"}
	for i, name := range order {
		if board[i].Name != name {
			t.Errorf("position %d: want %s, got %s", i, name, board[i].Name)
		}
	}
}
