package model

// Column layout of one match row in the results sheet.
const (
	RowWidth = 18

	GamesPerMatch = 5

	ColLevel      = 0  // levels occupy ColLevel..ColLevel+4
	ColNCS        = 5  // round / NCS tag
	ColWinner     = 6  // winner name
	ColWinnerTime = 7  // winner times occupy ColWinnerTime..ColWinnerTime+4
	ColLoser      = 12 // loser name
	ColLoserTime  = 13 // loser times occupy ColLoserTime..ColLoserTime+4
)

// Row is one raw match record. An empty cell means the sheet had no value.
type Row [RowWidth]string

// NewRow builds a Row from the leading cells of a sheet row. Missing tail
// cells stay empty and cells past RowWidth are dropped.
func NewRow(cells ...string) Row {
	var r Row
	copy(r[:], cells)
	return r
}

// Cells returns the row as a slice, trimmed of trailing empty cells the way
// the sheets API returns it.
func (r Row) Cells() []string {
	n := len(r)
	for n > 0 && r[n-1] == "" {
		n--
	}
	out := make([]string, n)
	copy(out, r[:n])
	return out
}

// Game is one of the five games of a match. Times are clock strings
// (H:MM:SS or M:SS); an empty time means the game was not recorded.
type Game struct {
	Level      string `json:"level"`
	WinnerTime string `json:"winnerTime,omitempty"`
	LoserTime  string `json:"loserTime,omitempty"`
}

// Played reports whether the game has a level assigned.
func (g Game) Played() bool { return g.Level != "" }

// Match is a single head-to-head match. The winner and loser roles are
// the match's overall roles, not per-game outcomes.
type Match struct {
	NCS    string              `json:"ncs"`
	Winner string              `json:"winner"`
	Loser  string              `json:"loser"`
	Games  [GamesPerMatch]Game `json:"games"`
}

// Side reports which role player occupies in the match.
func (m *Match) Side(player string) Side {
	switch player {
	case m.Winner:
		return SideWinner
	case m.Loser:
		return SideLoser
	default:
		return SideNone
	}
}

// Side is a player's role in a match.
type Side int

const (
	SideNone Side = iota
	SideWinner
	SideLoser
)

func (s Side) String() string {
	switch s {
	case SideWinner:
		return "winner"
	case SideLoser:
		return "loser"
	default:
		return "-"
	}
}

// MatchIndex maps a player name to the matches they took part in, in
// source row order.
type MatchIndex map[string][]*Match

// Players returns the number of distinct players in the index.
func (idx MatchIndex) Players() int { return len(idx) }

// PlayerStats are the aggregate figures for one player at one level.
// PB and AverageTime are in seconds.
type PlayerStats struct {
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	PB          int     `json:"pb"`
	AverageTime float64 `json:"averageTime"`
}

// Played is the number of games counted.
func (s PlayerStats) Played() int { return s.Wins + s.Losses }

// WinPct returns the win percentage (0-100).
func (s PlayerStats) WinPct() float64 {
	if s.Played() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Played()) * 100
}

// IngestRun records one attempt to pull rows from the sheet.
type IngestRun struct {
	ID        int64
	StartedAt string
	Rows      int
	Players   int
	Error     string
}

// OK reports whether the run succeeded.
func (r IngestRun) OK() bool { return r.Error == "" }

// Seeds maps a player name to their tournament seed label.
type Seeds map[string]string

// CacheOverview summarises the cached sheet.
type CacheOverview struct {
	Rows       int
	Players    int
	Seeds      int
	LastIngest *IngestRun // nil when nothing has been ingested successfully
}

// PlayerActivity counts the matches a player appears in, as winner or loser.
type PlayerActivity struct {
	Name    string
	Matches int
	Wins    int
}
