package rating

import "math"

// Outcome is a match result seen from player A's side.
type Outcome int

const (
	AWins Outcome = iota
	BWins
	Draw
)

const kFactor = 32

// ExpectedScore is the standard logistic expectation for player A.
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// ComputeDeltas returns the zero-sum rating adjustments for both players.
// Deterministic, no side effects.
func ComputeDeltas(ratingA, ratingB int, outcome Outcome) (deltaA, deltaB int) {
	var score float64
	switch outcome {
	case AWins:
		score = 1
	case BWins:
		score = 0
	case Draw:
		score = 0.5
	}
	deltaA = int(math.Round(kFactor * (score - ExpectedScore(ratingA, ratingB))))
	return deltaA, -deltaA
}
