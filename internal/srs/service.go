package srs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/records"
)

// ScheduledCard is a persisted review appointment. It is removed on review
// completion or when replaced by a newer schedule for the same card.
type ScheduledCard struct {
	ReviewID          string
	CardID            string
	CourseID          string
	ReviewTime        time.Time
	ScheduledAt       time.Time
	ScheduledFor      string // user id
	SchedulingAgentID string
}

// ReviewStore is the slice of user persistence the scheduler needs.
type ReviewStore interface {
	ScheduleCardReview(ctx context.Context, sc ScheduledCard) error
	RemoveScheduledCardReview(ctx context.Context, reviewID string) error
}

// HistoryStore persists card-history documents (best-interval watermark).
type HistoryStore interface {
	SaveCardHistory(ctx context.Context, h *records.CardHistory) error
}

// Service schedules and replaces card reviews.
type Service struct {
	reviews   ReviewStore
	histories HistoryStore
	userID    string
	agentID   string
	now       func() time.Time
	log       *slog.Logger
}

// NewService creates an SRS service. agentID identifies which scheduler
// produced a review, so competing agents can recognize their own schedules.
func NewService(reviews ReviewStore, histories HistoryStore, userID, agentID string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		reviews:   reviews,
		histories: histories,
		userID:    userID,
		agentID:   agentID,
		now:       time.Now,
		log:       log.With("component", "srs"),
	}
}

// ScheduleReview computes the next interval for the history's latest attempt
// and persists a review appointment. If the item being re-answered was itself
// a scheduled review, the stale schedule is removed first so a card never
// carries two appointments.
func (s *Service) ScheduleReview(ctx context.Context, h *records.CardHistory, item content.StudySessionItem) (*ScheduledCard, error) {
	interval, bestUpdated := NewInterval(h)

	if bestUpdated && s.histories != nil {
		if err := s.histories.SaveCardHistory(ctx, h); err != nil {
			s.log.Warn("persist best interval failed",
				"cardId", h.CardID, "error", err)
		}
	}

	if item.ReviewID != "" {
		if err := s.reviews.RemoveScheduledCardReview(ctx, item.ReviewID); err != nil {
			s.log.Warn("remove stale review failed",
				"reviewId", item.ReviewID, "cardId", item.CardID, "error", err)
		}
	}

	now := s.now()
	sc := ScheduledCard{
		ReviewID:          uuid.NewString(),
		CardID:            h.CardID,
		CourseID:          h.CourseID,
		ReviewTime:        now.Add(interval),
		ScheduledAt:       now,
		ScheduledFor:      s.userID,
		SchedulingAgentID: s.agentID,
	}
	if err := s.reviews.ScheduleCardReview(ctx, sc); err != nil {
		return nil, fmt.Errorf("schedule review for %s: %w", h.CardID, err)
	}
	return &sc, nil
}

// CancelReview removes a scheduled review, e.g. when a stale review item is
// skipped because its card no longer hydrates.
func (s *Service) CancelReview(ctx context.Context, reviewID string) {
	if reviewID == "" {
		return
	}
	if err := s.reviews.RemoveScheduledCardReview(ctx, reviewID); err != nil {
		s.log.Warn("cancel review failed", "reviewId", reviewID, "error", err)
	}
}
