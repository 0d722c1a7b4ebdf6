// Package records holds the append-only per-card interaction log consumed by
// the interval model, the rating updates and the outcome signal.
package records

import "time"

// Performance is the graded quality of a response. It is either a single
// scalar or a set of per-concept scores; the processor pattern-matches on the
// concrete type exactly once.
type Performance interface {
	// OverallScore collapses the performance to a single value in [0,1].
	OverallScore() float64

	isPerformance()
}

// ScalarPerformance is a single score in [0,1].
type ScalarPerformance float64

func (p ScalarPerformance) OverallScore() float64 { return clamp01(float64(p)) }
func (ScalarPerformance) isPerformance()          {}

// TaggedPerformance scores a response per concept tag. The overall score is
// the mean of the tag scores.
type TaggedPerformance map[string]float64

func (p TaggedPerformance) OverallScore() float64 {
	if len(p) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return clamp01(sum / float64(len(p)))
}
func (TaggedPerformance) isPerformance() {}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Record is a single logged interaction with a card.
type Record interface {
	When() time.Time
}

// CardRecord is the base interaction log entry, used as-is for non-question
// content (informational cards, media).
type CardRecord struct {
	CardID      string
	CourseID    string
	Timestamp   time.Time
	TimeSpentMs int
}

func (r CardRecord) When() time.Time { return r.Timestamp }

// QuestionRecord extends CardRecord with grading data for question content.
type QuestionRecord struct {
	CardRecord
	UserAnswer    string
	IsCorrect     bool
	Performance   Performance
	PriorAttempts int  // attempts already made on this view of the card
	DeferAdvance  bool // suppress navigation until an external signal
}

// CardKind distinguishes gradable from informational content.
type CardKind string

const (
	KindQuestion CardKind = "question"
	KindGeneral  CardKind = "general"
)

// CardHistory is the persisted interaction history for one card. Records are
// append-only; BestIntervalSecs is a running maximum maintained by the
// interval model.
type CardHistory struct {
	CardID           string
	CourseID         string
	Kind             CardKind
	Records          []Record
	BestIntervalSecs int64
	SessionViews     int // views of this card in the current session
}

// Append adds a record to the history.
func (h *CardHistory) Append(r Record) {
	h.Records = append(h.Records, r)
}

// Lapses counts the incorrect question records in the history.
func (h *CardHistory) Lapses() int {
	lapses := 0
	for _, r := range h.Records {
		if q, ok := r.(QuestionRecord); ok && !q.IsCorrect {
			lapses++
		}
	}
	return lapses
}

// Streak is the length of the trailing run of correct question records.
func (h *CardHistory) Streak() int {
	streak := 0
	for i := len(h.Records) - 1; i >= 0; i-- {
		q, ok := h.Records[i].(QuestionRecord)
		if !ok || !q.IsCorrect {
			break
		}
		streak++
	}
	return streak
}

// LatestQuestion returns the most recent question record, if any.
func (h *CardHistory) LatestQuestion() (QuestionRecord, bool) {
	for i := len(h.Records) - 1; i >= 0; i-- {
		if q, ok := h.Records[i].(QuestionRecord); ok {
			return q, true
		}
	}
	return QuestionRecord{}, false
}

// LastCorrectBefore returns the timestamp of the most recent correct question
// record strictly before t, and whether one exists.
func (h *CardHistory) LastCorrectBefore(t time.Time) (time.Time, bool) {
	for i := len(h.Records) - 1; i >= 0; i-- {
		q, ok := h.Records[i].(QuestionRecord)
		if !ok || !q.IsCorrect {
			continue
		}
		if q.Timestamp.Before(t) {
			return q.Timestamp, true
		}
	}
	return time.Time{}, false
}
