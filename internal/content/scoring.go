package content

import "math"

// eloWindow is the rating distance at which a card stops being considered
// close to the user's skill.
const eloWindow = 500.0

// EloProximityScore scores a card by how close its rating sits to the user's.
// A perfect match scores 1.0, falling off linearly to 0 at eloWindow apart.
func EloProximityScore(userElo, cardElo float64) float64 {
	return math.Max(0, 1-math.Abs(cardElo-userElo)/eloWindow)
}

// BoostFactor scales a base score by a strategy priority. A neutral priority
// of 0.5 yields factor 1.0; influence controls how far the factor can move.
func BoostFactor(priority, influence float64) float64 {
	return 1 + (priority-0.5)*influence
}

// ClampScore clamps a score into [0,1] after any adjustment.
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
