// Package rating implements Elo rating math and the post-match rating update.
package rating

import "math"

const (
	// DefaultRating seeds a bot's first rating row for a game.
	DefaultRating = 1200

	// Provisional bots move faster until they have a track record.
	kProvisional        = 32
	kEstablished        = 16
	provisionalMatchCap = 30
)

// KFactor returns the K used for a bot that has played the given number of
// rated matches before this one.
func KFactor(matchesPlayed int) int {
	if matchesPlayed < provisionalMatchCap {
		return kProvisional
	}
	return kEstablished
}

// ExpectedScore is the standard Elo expectation of the first player against
// the second.
func ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// Compute returns both players' new ratings after a match. score1 is player
// one's actual score: 1 for a win, 0.5 for a draw, 0 for a loss.
func Compute(rating1, played1, rating2, played2 int, score1 float64) (int, int) {
	exp1 := ExpectedScore(rating1, rating2)
	exp2 := ExpectedScore(rating2, rating1)
	score2 := 1.0 - score1

	new1 := rating1 + roundHalfUp(float64(KFactor(played1))*(score1-exp1))
	new2 := rating2 + roundHalfUp(float64(KFactor(played2))*(score2-exp2))
	return new1, new2
}

// roundHalfUp rounds signed deltas with ties going up: 0.5 -> 1, -0.5 -> 0.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
