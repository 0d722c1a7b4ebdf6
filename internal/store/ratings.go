package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studyflow/studyflow/internal/elo"
)

type cardEloRow struct {
	CourseID     string  `db:"course_id"`
	CardID       string  `db:"card_id"`
	Global       float64 `db:"global"`
	Tags         string  `db:"tags"`
	AttemptCount int     `db:"attempt_count"`
}

type registrationRow struct {
	CourseID string  `db:"course_id"`
	UserID   string  `db:"user_id"`
	Elo      float64 `db:"elo"`
	Tags     string  `db:"tags"`
}

// GetCardEloData returns rating data for the given cards. Cards never rated
// are absent from the result; the rating service fills in defaults.
func (s *Store) GetCardEloData(ctx context.Context, courseID string, cardIDs []string) (map[string]elo.CardEloData, error) {
	out := make(map[string]elo.CardEloData, len(cardIDs))
	if len(cardIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT course_id, card_id, global, tags, attempt_count
		FROM card_elo WHERE course_id = ? AND card_id IN (?)`, courseID, cardIDs)
	if err != nil {
		return nil, fmt.Errorf("build card elo query: %w", err)
	}

	var rows []cardEloRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query card elo for %s: %w", courseID, err)
	}

	for _, r := range rows {
		var tags map[string]float64
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return nil, fmt.Errorf("unmarshal card elo tags for %s: %w", r.CardID, err)
		}
		out[r.CardID] = elo.CardEloData{
			CardID: r.CardID,
			Global: r.Global,
			Tags:   tags,
			Count:  r.AttemptCount,
		}
	}
	return out, nil
}

// UpdateCardElo upserts a card's rating data.
func (s *Store) UpdateCardElo(ctx context.Context, courseID string, data elo.CardEloData) error {
	tags, err := json.Marshal(data.Tags)
	if err != nil {
		return fmt.Errorf("marshal card elo tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_elo (course_id, card_id, global, tags, attempt_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (course_id, card_id)
		DO UPDATE SET global = excluded.global, tags = excluded.tags,
			attempt_count = excluded.attempt_count`,
		courseID, data.CardID, data.Global, string(tags), data.Count)
	if err != nil {
		return fmt.Errorf("update card elo for %s: %w", data.CardID, err)
	}
	return nil
}

// UpdateUserElo upserts the user's course registration.
func (s *Store) UpdateUserElo(ctx context.Context, reg elo.CourseRegistration) error {
	tags, err := json.Marshal(reg.Tags)
	if err != nil {
		return fmt.Errorf("marshal registration tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registrations (course_id, user_id, elo, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (course_id, user_id)
		DO UPDATE SET elo = excluded.elo, tags = excluded.tags`,
		reg.CourseID, reg.UserID, reg.Elo, string(tags))
	if err != nil {
		return fmt.Errorf("update registration %s/%s: %w", reg.CourseID, reg.UserID, err)
	}
	return nil
}

// GetRegistration loads a user's course registration, creating the default
// one on first sight.
func (s *Store) GetRegistration(ctx context.Context, courseID, userID string) (*elo.CourseRegistration, error) {
	var row registrationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT course_id, user_id, elo, tags
		FROM registrations WHERE course_id = ? AND user_id = ?`, courseID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		reg := elo.CourseRegistration{
			CourseID: courseID,
			UserID:   userID,
			Elo:      elo.DefaultRating,
			Tags:     map[string]float64{},
		}
		if err := s.UpdateUserElo(ctx, reg); err != nil {
			return nil, err
		}
		return &reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load registration %s/%s: %w", courseID, userID, err)
	}

	var tags map[string]float64
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal registration tags: %w", err)
	}
	if tags == nil {
		tags = map[string]float64{}
	}
	return &elo.CourseRegistration{
		CourseID: row.CourseID,
		UserID:   row.UserID,
		Elo:      row.Elo,
		Tags:     tags,
	}, nil
}
