package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyflow/studyflow/internal/orchestration"
)

type outcomeRow struct {
	OutcomeID    string  `db:"outcome_id"`
	CourseID     string  `db:"course_id"`
	UserID       string  `db:"user_id"`
	PeriodStart  int64   `db:"period_start"`
	PeriodEnd    int64   `db:"period_end"`
	OutcomeValue float64 `db:"outcome_value"`
	Deviations   string  `db:"deviations"`
	Metadata     string  `db:"metadata"`
}

// PutUserOutcome persists an outcome record. The deterministic id makes a
// replayed period overwrite itself instead of duplicating.
func (s *Store) PutUserOutcome(ctx context.Context, rec orchestration.UserOutcomeRecord) error {
	devs, err := json.Marshal(rec.Deviations)
	if err != nil {
		return fmt.Errorf("marshal deviations: %w", err)
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_outcomes
			(outcome_id, course_id, user_id, period_start, period_end,
			 outcome_value, deviations, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID(), rec.CourseID, rec.UserID,
		rec.PeriodStart.Unix(), rec.PeriodEnd.Unix(),
		rec.OutcomeValue, string(devs), string(meta))
	if err != nil {
		return fmt.Errorf("put outcome %s: %w", rec.ID(), err)
	}
	return nil
}

// UserOutcomes returns every outcome record for a course, oldest first.
func (s *Store) UserOutcomes(ctx context.Context, courseID string) ([]orchestration.UserOutcomeRecord, error) {
	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT outcome_id, course_id, user_id, period_start, period_end,
			outcome_value, deviations, metadata
		FROM user_outcomes WHERE course_id = ?
		ORDER BY period_end`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for %s: %w", courseID, err)
	}

	recs := make([]orchestration.UserOutcomeRecord, 0, len(rows))
	for _, r := range rows {
		var devs map[string]float64
		if err := json.Unmarshal([]byte(r.Deviations), &devs); err != nil {
			return nil, fmt.Errorf("unmarshal deviations for %s: %w", r.OutcomeID, err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", r.OutcomeID, err)
		}
		recs = append(recs, orchestration.UserOutcomeRecord{
			CourseID:     r.CourseID,
			UserID:       r.UserID,
			PeriodStart:  time.Unix(r.PeriodStart, 0),
			PeriodEnd:    time.Unix(r.PeriodEnd, 0),
			OutcomeValue: r.OutcomeValue,
			Deviations:   devs,
			Metadata:     meta,
		})
	}
	return recs, nil
}
