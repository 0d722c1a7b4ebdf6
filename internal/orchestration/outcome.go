package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyflow/studyflow/internal/records"
)

// UserOutcomeRecord is one session-like period's outcome, with the strategy
// deviations active when it was recorded. The id is deterministic so a replay
// of the same period cannot duplicate the record.
type UserOutcomeRecord struct {
	CourseID     string
	UserID       string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	OutcomeValue float64 // [0,1]
	Deviations   map[string]float64
	Metadata     map[string]string
}

// ID returns the deterministic record id: courseId/userId/periodEnd.
func (r UserOutcomeRecord) ID() string {
	return fmt.Sprintf("%s/%s/%d", r.CourseID, r.UserID, r.PeriodEnd.Unix())
}

// OutcomeStore persists outcome telemetry.
type OutcomeStore interface {
	PutUserOutcome(ctx context.Context, rec UserOutcomeRecord) error
	UserOutcomes(ctx context.Context, courseID string) ([]UserOutcomeRecord, error)
}

// DeviationSource exposes the current parameter deviation of every active
// strategy.
type DeviationSource interface {
	CurrentDeviations() map[string]float64
}

// Recorder turns session records into persisted outcome telemetry.
type Recorder struct {
	store      OutcomeStore
	deviations DeviationSource
	target     float64
	tolerance  float64
	log        *slog.Logger
}

// NewRecorder creates a recorder with the default accuracy zone.
func NewRecorder(store OutcomeStore, deviations DeviationSource, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store:      store,
		deviations: deviations,
		target:     DefaultTargetAccuracy,
		tolerance:  DefaultTolerance,
		log:        log.With("component", "orchestration"),
	}
}

// SetTargetAccuracy overrides the accuracy the outcome signal is computed
// against. Values outside (0, 1] are ignored.
func (r *Recorder) SetTargetAccuracy(target float64) {
	if target > 0 && target <= 1 {
		r.target = target
	}
}

// RecordUserOutcome computes the period's outcome signal and persists it
// best-effort. Insufficient data skips persistence entirely; a store failure
// is logged and never propagated — this is telemetry, not a transactional
// write.
//
// The deviations are snapshotted at recording time, not at decision time; if
// strategies changed mid-session this attributes the whole period to the
// final settings. Known approximation.
func (r *Recorder) RecordUserOutcome(ctx context.Context, courseID, userID string, periodStart, periodEnd time.Time, recs []records.QuestionRecord) {
	signal, ok := ComputeOutcomeSignal(recs, r.target, r.tolerance)
	if !ok {
		r.log.Debug("no records in period, skipping outcome",
			"courseId", courseID, "userId", userID)
		return
	}

	devs := map[string]float64{}
	if r.deviations != nil {
		for id, d := range r.deviations.CurrentDeviations() {
			devs[id] = d
		}
	}

	rec := UserOutcomeRecord{
		CourseID:     courseID,
		UserID:       userID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		OutcomeValue: signal,
		Deviations:   devs,
		Metadata: map[string]string{
			"records": fmt.Sprintf("%d", len(recs)),
		},
	}

	if err := r.store.PutUserOutcome(ctx, rec); err != nil {
		r.log.Warn("persist outcome failed", "id", rec.ID(), "error", err)
	}
}
