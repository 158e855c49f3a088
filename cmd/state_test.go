package cmd

import (
	"errors"
	"testing"

	"github.com/pable/versus-overlay/internal/overlay"
)

func TestParseAssignments(t *testing.T) {
	p, err := parseAssignments([]string{"playerLeft=alice", "scoreRight=2", "round=Grand Final", "caster1="})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if p.PlayerLeft == nil || *p.PlayerLeft != "alice" {
		t.Errorf("playerLeft not set: %+v", p.PlayerLeft)
	}
	if p.ScoreRight == nil || *p.ScoreRight != 2 {
		t.Errorf("scoreRight not set: %+v", p.ScoreRight)
	}
	if p.Round == nil || *p.Round != "Grand Final" {
		t.Errorf("round not set: %+v", p.Round)
	}
	if p.Caster1 == nil || *p.Caster1 != "" {
		t.Errorf("caster1 should be set to empty, got %+v", p.Caster1)
	}
	if p.Level != nil {
		t.Error("level should be untouched")
	}
}

func TestParseAssignmentsErrors(t *testing.T) {
	if _, err := parseAssignments([]string{"scoreLeft"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseAssignments([]string{"scoreLeft=two"}); !errors.Is(err, overlay.ErrBadPatch) {
		t.Errorf("expected ErrBadPatch, got %v", err)
	}
	if _, err := parseAssignments([]string{"playerLeftWinLoss=3 - 0"}); !errors.Is(err, overlay.ErrBadPatch) {
		t.Errorf("derived field should be rejected, got %v", err)
	}
}
