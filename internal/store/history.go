package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/studyflow/studyflow/internal/records"
)

type historyRow struct {
	CourseID         string `db:"course_id"`
	CardID           string `db:"card_id"`
	Kind             string `db:"kind"`
	Records          string `db:"records"`
	BestIntervalSecs int64  `db:"best_interval_secs"`
}

// recordEnvelope is the serialized form of a history record. The type tag
// picks the concrete record on load.
type recordEnvelope struct {
	Type          string             `json:"type"` // "card" or "question"
	CardID        string             `json:"cardId"`
	CourseID      string             `json:"courseId"`
	Timestamp     int64              `json:"timestamp"`
	TimeSpentMs   int                `json:"timeSpentMs"`
	UserAnswer    string             `json:"userAnswer,omitempty"`
	IsCorrect     bool               `json:"isCorrect,omitempty"`
	PriorAttempts int                `json:"priorAttempts,omitempty"`
	DeferAdvance  bool               `json:"deferAdvance,omitempty"`
	Scalar        *float64           `json:"scalarPerformance,omitempty"`
	TagScores     map[string]float64 `json:"taggedPerformance,omitempty"`
}

func encodeRecords(recs []records.Record) (string, error) {
	envs := make([]recordEnvelope, 0, len(recs))
	for _, rec := range recs {
		switch r := rec.(type) {
		case records.QuestionRecord:
			env := recordEnvelope{
				Type:          "question",
				CardID:        r.CardID,
				CourseID:      r.CourseID,
				Timestamp:     r.Timestamp.Unix(),
				TimeSpentMs:   r.TimeSpentMs,
				UserAnswer:    r.UserAnswer,
				IsCorrect:     r.IsCorrect,
				PriorAttempts: r.PriorAttempts,
				DeferAdvance:  r.DeferAdvance,
			}
			switch perf := r.Performance.(type) {
			case records.ScalarPerformance:
				v := float64(perf)
				env.Scalar = &v
			case records.TaggedPerformance:
				env.TagScores = perf
			}
			envs = append(envs, env)
		case records.CardRecord:
			envs = append(envs, recordEnvelope{
				Type:        "card",
				CardID:      r.CardID,
				CourseID:    r.CourseID,
				Timestamp:   r.Timestamp.Unix(),
				TimeSpentMs: r.TimeSpentMs,
			})
		default:
			return "", fmt.Errorf("unknown record type %T", rec)
		}
	}
	data, err := json.Marshal(envs)
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	return string(data), nil
}

func decodeRecords(data string) ([]records.Record, error) {
	var envs []recordEnvelope
	if err := json.Unmarshal([]byte(data), &envs); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}

	recs := make([]records.Record, 0, len(envs))
	for _, env := range envs {
		base := records.CardRecord{
			CardID:      env.CardID,
			CourseID:    env.CourseID,
			Timestamp:   time.Unix(env.Timestamp, 0),
			TimeSpentMs: env.TimeSpentMs,
		}
		if env.Type != "question" {
			recs = append(recs, base)
			continue
		}

		q := records.QuestionRecord{
			CardRecord:    base,
			UserAnswer:    env.UserAnswer,
			IsCorrect:     env.IsCorrect,
			PriorAttempts: env.PriorAttempts,
			DeferAdvance:  env.DeferAdvance,
		}
		switch {
		case env.TagScores != nil:
			q.Performance = records.TaggedPerformance(env.TagScores)
		case env.Scalar != nil:
			q.Performance = records.ScalarPerformance(*env.Scalar)
		}
		recs = append(recs, q)
	}
	return recs, nil
}

// SaveCardHistory upserts a card's interaction history. SessionViews is
// per-session state and is deliberately not persisted.
func (s *Store) SaveCardHistory(ctx context.Context, h *records.CardHistory) error {
	encoded, err := encodeRecords(h.Records)
	if err != nil {
		return fmt.Errorf("encode history for %s: %w", h.CardID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_histories (course_id, card_id, kind, records, best_interval_secs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (course_id, card_id)
		DO UPDATE SET kind = excluded.kind, records = excluded.records,
			best_interval_secs = excluded.best_interval_secs`,
		h.CourseID, h.CardID, string(h.Kind), encoded, h.BestIntervalSecs)
	if err != nil {
		return fmt.Errorf("save history for %s: %w", h.CardID, err)
	}
	return nil
}

// GetCardHistory loads a card's history. A card with no history yet returns
// (nil, nil).
func (s *Store) GetCardHistory(ctx context.Context, courseID, cardID string) (*records.CardHistory, error) {
	var row historyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT course_id, card_id, kind, records, best_interval_secs
		FROM card_histories WHERE course_id = ? AND card_id = ?`, courseID, cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", cardID, err)
	}

	recs, err := decodeRecords(row.Records)
	if err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", cardID, err)
	}
	return &records.CardHistory{
		CardID:           row.CardID,
		CourseID:         row.CourseID,
		Kind:             records.CardKind(row.Kind),
		Records:          recs,
		BestIntervalSecs: row.BestIntervalSecs,
	}, nil
}
