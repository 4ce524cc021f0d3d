package rating

import "testing"

func TestEqualRatingsDecisive(t *testing.T) {
	dA, dB := ComputeDeltas(1000, 1000, AWins)
	if dA != 16 || dB != -16 {
		t.Fatalf("expected (+16,-16), got (%d,%d)", dA, dB)
	}
	dA, dB = ComputeDeltas(1000, 1000, BWins)
	if dA != -16 || dB != 16 {
		t.Fatalf("expected (-16,+16), got (%d,%d)", dA, dB)
	}
}

func TestEqualRatingsDraw(t *testing.T) {
	dA, dB := ComputeDeltas(1000, 1000, Draw)
	if dA != 0 || dB != 0 {
		t.Fatalf("expected (0,0), got (%d,%d)", dA, dB)
	}
}

func TestUnderdogGainsMore(t *testing.T) {
	dA, dB := ComputeDeltas(1200, 1600, AWins)
	if dA <= 16 {
		t.Fatalf("underdog win should exceed +16, got %d", dA)
	}
	if dB != -dA {
		t.Fatalf("deltas not zero-sum: (%d,%d)", dA, dB)
	}
}

func TestDeterministicAndSymmetric(t *testing.T) {
	a1, b1 := ComputeDeltas(1100, 1350, Draw)
	a2, b2 := ComputeDeltas(1100, 1350, Draw)
	if a1 != a2 || b1 != b2 {
		t.Fatalf("non-deterministic deltas")
	}
	// Swapping sides mirrors the adjustment.
	b3, a3 := ComputeDeltas(1350, 1100, Draw)
	if a3 != a1 || b3 != b1 {
		t.Fatalf("asymmetric deltas: (%d,%d) vs (%d,%d)", a1, b1, a3, b3)
	}
}
