// Package orchestration turns per-response records into outcome signals,
// correlates them against strategy parameter deviations, and adapts strategy
// weights from the result.
package orchestration

import (
	"math"

	"github.com/studyflow/studyflow/internal/records"
)

const (
	// DefaultTargetAccuracy is the session accuracy the engine steers toward.
	// Well below it the user is drowning; well above it they are coasting.
	DefaultTargetAccuracy = 0.85

	// DefaultTolerance is the half-width of the full-credit zone around the
	// target.
	DefaultTolerance = 0.05

	// falloffRate is the linear penalty per unit of accuracy outside the zone.
	falloffRate = 2.5
)

// ScoreAccuracyInZone scores an accuracy against a target zone: 1.0 within
// ±tolerance of target, falling off linearly outside and floored at 0. This
// rewards being appropriately challenged, not merely correct.
func ScoreAccuracyInZone(accuracy, target, tolerance float64) float64 {
	excess := math.Abs(accuracy-target) - tolerance
	if excess <= 0 {
		return 1.0
	}
	score := 1 - excess*falloffRate
	if score < 0 {
		return 0
	}
	return score
}

// ComputeOutcomeSignal collapses a session's question records into a scalar
// outcome in [0,1]. ok is false when there are no records to score.
func ComputeOutcomeSignal(recs []records.QuestionRecord, target, tolerance float64) (signal float64, ok bool) {
	if len(recs) == 0 {
		return 0, false
	}
	correct := 0
	for _, r := range recs {
		if r.IsCorrect {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(recs))
	return ScoreAccuracyInZone(accuracy, target, tolerance), true
}
