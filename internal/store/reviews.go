package store

import (
	"context"
	"fmt"
	"time"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/srs"
)

type reviewRow struct {
	ReviewID     string `db:"review_id"`
	CardID       string `db:"card_id"`
	CourseID     string `db:"course_id"`
	ReviewTime   int64  `db:"review_time"`
	ScheduledAt  int64  `db:"scheduled_at"`
	ScheduledFor string `db:"scheduled_for"`
	AgentID      string `db:"agent_id"`
}

// ScheduleCardReview persists a review appointment, replacing any previous
// row with the same id.
func (s *Store) ScheduleCardReview(ctx context.Context, sc srs.ScheduledCard) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scheduled_reviews
			(review_id, card_id, course_id, review_time, scheduled_at, scheduled_for, agent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.ReviewID, sc.CardID, sc.CourseID,
		sc.ReviewTime.Unix(), sc.ScheduledAt.Unix(), sc.ScheduledFor, sc.SchedulingAgentID)
	if err != nil {
		return fmt.Errorf("schedule review %s: %w", sc.ReviewID, err)
	}
	return nil
}

// RemoveScheduledCardReview deletes a review appointment. Removing a
// non-existent review is not an error.
func (s *Store) RemoveScheduledCardReview(ctx context.Context, reviewID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_reviews WHERE review_id = ?`, reviewID)
	if err != nil {
		return fmt.Errorf("remove review %s: %w", reviewID, err)
	}
	return nil
}

// PendingReviews returns the reviews whose time has arrived, oldest first.
// Satisfies the navigator catalog contract.
func (s *Store) PendingReviews(ctx context.Context, courseID string) ([]content.ReviewRef, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT review_id, card_id, course_id, review_time, scheduled_at, scheduled_for, agent_id
		FROM scheduled_reviews
		WHERE course_id = ? AND review_time <= ?
		ORDER BY review_time`, courseID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("query pending reviews for %s: %w", courseID, err)
	}

	refs := make([]content.ReviewRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, content.ReviewRef{
			ReviewID: r.ReviewID,
			CardID:   r.CardID,
			CourseID: r.CourseID,
		})
	}
	return refs, nil
}

// ScheduledReviews returns every appointment for a course regardless of due
// time, soonest first. Used by diagnostics output.
func (s *Store) ScheduledReviews(ctx context.Context, courseID string) ([]srs.ScheduledCard, error) {
	var rows []reviewRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT review_id, card_id, course_id, review_time, scheduled_at, scheduled_for, agent_id
		FROM scheduled_reviews
		WHERE course_id = ?
		ORDER BY review_time`, courseID)
	if err != nil {
		return nil, fmt.Errorf("query reviews for %s: %w", courseID, err)
	}

	cards := make([]srs.ScheduledCard, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, srs.ScheduledCard{
			ReviewID:          r.ReviewID,
			CardID:            r.CardID,
			CourseID:          r.CourseID,
			ReviewTime:        time.Unix(r.ReviewTime, 0),
			ScheduledAt:       time.Unix(r.ScheduledAt, 0),
			ScheduledFor:      r.ScheduledFor,
			SchedulingAgentID: r.AgentID,
		})
	}
	return cards, nil
}
