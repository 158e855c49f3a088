package aggregator

import (
	"sort"

	"github.com/pable/versus-overlay/internal/clock"
	"github.com/pable/versus-overlay/internal/model"
)

// pbSentinel exceeds any realistic run time so the first counted game
// always replaces it.
const pbSentinel = 200000000

// Options tunes how ComputeStats treats incomplete games.
type Options struct {
	// Legacy reproduces the sheet's historical arithmetic: a missing time is
	// read as 0 seconds and still compared, so a player whose opponent has no
	// time never wins that game and a player with no time always does. A match
	// a player recorded against themselves is scored once from each side.
	Legacy bool
}

// MatchFromRow builds a Match from one raw sheet row.
func MatchFromRow(r model.Row) *model.Match {
	m := &model.Match{
		NCS:    r[model.ColNCS],
		Winner: r[model.ColWinner],
		Loser:  r[model.ColLoser],
	}
	for i := 0; i < model.GamesPerMatch; i++ {
		m.Games[i] = model.Game{
			Level:      r[model.ColLevel+i],
			WinnerTime: r[model.ColWinnerTime+i],
			LoserTime:  r[model.ColLoserTime+i],
		}
	}
	return m
}

// BuildIndex builds a fresh player → matches index from rows. Every row
// becomes one Match listed under its winner and its loser; nothing is
// carried over from earlier builds.
func BuildIndex(rows []model.Row) model.MatchIndex {
	idx := make(model.MatchIndex)
	for _, r := range rows {
		m := MatchFromRow(r)
		idx[m.Winner] = append(idx[m.Winner], m)
		if m.Loser != m.Winner {
			idx[m.Loser] = append(idx[m.Loser], m)
		}
	}
	return idx
}

// ComputeStats aggregates player's games at level. It returns false when the
// player has no matches or no counted game at that level.
func ComputeStats(idx model.MatchIndex, player, level string, opts Options) (model.PlayerStats, bool) {
	matches, ok := idx[player]
	if !ok || level == "" {
		return model.PlayerStats{}, false
	}

	var (
		wins, played int
		pb           = pbSentinel
		total        int
	)
	for _, m := range matches {
		for _, side := range scoredSides(m, player, opts) {
			for _, g := range m.Games {
				if !g.Played() || g.Level != level {
					continue
				}
				own, opp := g.WinnerTime, g.LoserTime
				if side == model.SideLoser {
					own, opp = opp, own
				}

				secs, won, counted := scoreGame(own, opp, opts)
				if !counted {
					continue
				}
				played++
				total += secs
				if secs < pb {
					pb = secs
				}
				if won {
					wins++
				}
			}
		}
	}
	if played == 0 {
		return model.PlayerStats{}, false
	}

	return model.PlayerStats{
		Wins:        wins,
		Losses:      played - wins,
		PB:          pb,
		AverageTime: float64(total) / float64(played),
	}, true
}

// scoredSides lists the sides of m the player's games are scored from.
func scoredSides(m *model.Match, player string, opts Options) []model.Side {
	if opts.Legacy && m.Winner == player && m.Loser == player {
		return []model.Side{model.SideLoser, model.SideWinner}
	}
	if side := m.Side(player); side != model.SideNone {
		return []model.Side{side}
	}
	return nil
}

// scoreGame returns the subject's seconds for one game, whether it beat the
// opponent's time, and whether the game counts at all.
func scoreGame(own, opp string, opts Options) (secs int, won, counted bool) {
	if opts.Legacy {
		o, p := clock.ParseOrZero(own), clock.ParseOrZero(opp)
		return o, o < p, true
	}

	secs, err := clock.Parse(own)
	if err != nil || own == "" {
		return 0, false, false
	}
	oppSecs, err := clock.Parse(opp)
	if err != nil || opp == "" {
		// opponent posted no time
		return secs, true, true
	}
	return secs, secs < oppSecs, true
}

// Players returns every player in the index, sorted by name.
func Players(idx model.MatchIndex) []string {
	out := make([]string, 0, len(idx))
	for name := range idx {
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Levels returns the distinct levels played across the index, sorted.
func Levels(idx model.MatchIndex) []string {
	seen := make(map[string]struct{})
	for _, matches := range idx {
		for _, m := range matches {
			for _, g := range m.Games {
				if g.Played() {
					seen[g.Level] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// PlayerLine is one player's stats at a level, as listed in a leaderboard.
type PlayerLine struct {
	Name  string
	Stats model.PlayerStats
}

// Leaderboard computes stats for every player with at least one counted game
// at level, ordered by PB then average time then name.
func Leaderboard(idx model.MatchIndex, level string, opts Options) []PlayerLine {
	var out []PlayerLine
	for _, name := range Players(idx) {
		s, ok := ComputeStats(idx, name, level, opts)
		if !ok {
			continue
		}
		out = append(out, PlayerLine{Name: name, Stats: s})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Stats, out[j].Stats
		if a.PB != b.PB {
			return a.PB < b.PB
		}
		if a.AverageTime != b.AverageTime {
			return a.AverageTime < b.AverageTime
		}
		return out[i].Name < out[j].Name
	})
	return out
}
