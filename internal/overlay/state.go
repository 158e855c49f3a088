// Package overlay owns the broadcast state shown by the 1v1 overlay and keeps
// its derived player statistics in step with the match index.
package overlay

import (
	"fmt"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/clock"
	"github.com/pable/versus-overlay/internal/model"
)

// Event names on the push channel.
const (
	EventUpdate       = "OnevsOneUpdate"
	EventStateRequest = "OnevsOneStateRequest"
	EventUpdateData   = "UpdateOnevsOneData"
)

// State is everything a display client renders.
type State struct {
	PlayerLeft  string `json:"playerLeft"`
	PlayerRight string `json:"playerRight"`
	ScoreLeft   int    `json:"scoreLeft"`
	ScoreRight  int    `json:"scoreRight"`
	Round       string `json:"round"`
	BestOf      string `json:"bestOf"`
	Level       string `json:"level"`

	PlayerLeftWinLoss      string `json:"playerLeftWinLoss"`
	PlayerLeftTourneyPB    string `json:"playerLeftTourneyPB"`
	PlayerLeftAverageTime  string `json:"playerLeftAverageTime"`
	PlayerRightWinLoss     string `json:"playerRightWinLoss"`
	PlayerRightTourneyPB   string `json:"playerRightTourneyPB"`
	PlayerRightAverageTime string `json:"playerRightAverageTime"`
	PlayerLeftSeed         string `json:"playerLeftSeed"`
	PlayerRightSeed        string `json:"playerRightSeed"`

	Caster1 string `json:"caster1"`
	Caster2 string `json:"caster2"`
	Caster3 string `json:"caster3"`
}

// Update is the payload of EventUpdate. SocketID names the client whose
// request triggered it.
type Update struct {
	State
	SocketID string `json:"socketId,omitempty"`
}

// Placeholders rendered for a player without stats.
const (
	NoWinLoss = "0 - 0"
	NoTime    = clock.NoData
)

// FormatStats renders stats for display, or the placeholders when ok is false.
func FormatStats(s model.PlayerStats, ok bool) (winLoss, pb, avg string) {
	if !ok {
		return NoWinLoss, NoTime, NoTime
	}
	return fmt.Sprintf("%d - %d", s.Wins, s.Losses),
		clock.Format(float64(s.PB)),
		clock.Format(s.AverageTime)
}

// withStats returns st with every derived field recomputed.
func withStats(st State, idx model.MatchIndex, seeds model.Seeds, opts aggregator.Options) State {
	left, ok := aggregator.ComputeStats(idx, st.PlayerLeft, st.Level, opts)
	st.PlayerLeftWinLoss, st.PlayerLeftTourneyPB, st.PlayerLeftAverageTime = FormatStats(left, ok)

	right, ok := aggregator.ComputeStats(idx, st.PlayerRight, st.Level, opts)
	st.PlayerRightWinLoss, st.PlayerRightTourneyPB, st.PlayerRightAverageTime = FormatStats(right, ok)

	st.PlayerLeftSeed = seeds[st.PlayerLeft]
	st.PlayerRightSeed = seeds[st.PlayerRight]
	return st
}
