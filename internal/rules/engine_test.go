package rules

import "testing"

func TestApplyMoveAndSerialize(t *testing.T) {
	g := NewGame()
	if g.TurnToMove() != "white" {
		t.Fatalf("expected white to move, got %s", g.TurnToMove())
	}

	mv, err := g.ApplyMove("e2", "e4", "")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if mv.SAN != "e4" {
		t.Fatalf("unexpected SAN: %q", mv.SAN)
	}
	if g.TurnToMove() != "black" {
		t.Fatalf("turn did not flip: %s", g.TurnToMove())
	}
	if mv.State != g.State() {
		t.Fatalf("move state token diverges from game state")
	}
	if h := g.History(); len(h) != 1 || h[0] != "e4" {
		t.Fatalf("unexpected history: %v", h)
	}
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	g := NewGame()
	before := g.State()
	if _, err := g.ApplyMove("e2", "e5", ""); err == nil {
		t.Fatalf("expected illegal move error")
	}
	if g.State() != before {
		t.Fatalf("state mutated by rejected move")
	}
	if len(g.History()) != 0 {
		t.Fatalf("history mutated by rejected move")
	}
}

func TestFoolsMateIsTerminal(t *testing.T) {
	g := NewGame()
	moves := [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"}}
	for _, m := range moves {
		if _, err := g.ApplyMove(m[0], m[1], ""); err != nil {
			t.Fatalf("ApplyMove %v: %v", m, err)
		}
	}
	if !g.IsTerminal() {
		t.Fatalf("expected terminal position")
	}
	winner, reason := g.Terminal()
	if winner != "black" || reason != "checkmate" {
		t.Fatalf("unexpected terminal: winner=%q reason=%q", winner, reason)
	}
}

func TestLoadFromFEN(t *testing.T) {
	g := NewGame()
	if _, err := g.ApplyMove("e2", "e4", ""); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	loaded, err := Load(g.State())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TurnToMove() != "black" {
		t.Fatalf("loaded game turn mismatch: %s", loaded.TurnToMove())
	}
	if loaded.State() != g.State() {
		t.Fatalf("round-trip state mismatch")
	}
}
