// Package srs computes spaced-repetition intervals and maintains the
// scheduled-review lifecycle for cards.
package srs

import (
	"time"

	"github.com/studyflow/studyflow/internal/records"
)

const (
	// minLastInterval floors the observed gap between successes so a burst
	// of same-day reviews cannot collapse the schedule.
	minLastInterval = 20 * time.Hour

	// initialInterval is assumed when a card has no prior success.
	initialInterval = 3 * 24 * time.Hour

	// generalContentInterval is the sentinel for non-question content, far
	// enough out that informational cards never enter the review stream.
	generalContentInterval = 180 * 24 * time.Hour
)

// NewInterval computes the next review interval for a history whose latest
// record is the attempt just made. It returns the interval and whether the
// history's best-interval watermark was raised (the caller persists it).
//
// An incorrect attempt yields 0: the card is an immediate re-queue candidate.
func NewInterval(h *records.CardHistory) (time.Duration, bool) {
	if h.Kind != records.KindQuestion {
		return generalContentInterval, false
	}

	latest, ok := h.LatestQuestion()
	if !ok {
		return generalContentInterval, false
	}
	if !latest.IsCorrect {
		return 0, false
	}

	lastInterval := initialInterval
	if prev, found := h.LastCorrectBefore(latest.Timestamp); found {
		lastInterval = latest.Timestamp.Sub(prev)
		if lastInterval < minLastInterval {
			lastInterval = minLastInterval
		}
	}

	skill := 0.0
	if latest.Performance != nil {
		skill = latest.Performance.OverallScore()
	}
	interval := time.Duration(float64(lastInterval) * (0.75 + skill))

	bestUpdated := false
	best := time.Duration(h.BestIntervalSecs) * time.Second
	if lastInterval > best {
		best = lastInterval
		h.BestIntervalSecs = int64(lastInterval / time.Second)
		bestUpdated = true
	}

	lapses := h.Lapses()
	streak := h.Streak()
	if lapses+streak == 0 || best <= 0 {
		return interval, bestUpdated
	}

	// Weighted average: lapses pull toward the fresh interval, a long streak
	// pulls toward the best interval the card has ever sustained.
	weighted := (float64(lapses)*float64(interval) + float64(streak)*float64(best)) /
		float64(lapses+streak)
	return time.Duration(weighted), bestUpdated
}
