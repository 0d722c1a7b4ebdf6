package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/elo"
)

// ratingSource is the slice of the store the adaptive navigator reads.
type ratingSource interface {
	GetCardEloData(ctx context.Context, courseID string, cardIDs []string) (map[string]elo.CardEloData, error)
	GetRegistration(ctx context.Context, courseID, userID string) (*elo.CourseRegistration, error)
}

// AdaptiveNavigator scores new cards by rating proximity: cards close to the
// user's current rating score high, cards far outside the window score low.
// Its learned strategy weight and any ephemeral replan hint scale the scores
// before clamping. Due reviews always score 1.0.
type AdaptiveNavigator struct {
	strategyID string
	courseID   string
	userID     string
	cards      content.Catalog
	ratings    ratingSource
	weight     float64
	log        *slog.Logger

	mu    sync.Mutex
	hints map[string]float64
}

const adaptiveNewBatch = 20

// NewAdaptiveNavigator creates the navigator. weight is the strategy's
// learned multiplier, 1.0 when nothing has been learned yet.
func NewAdaptiveNavigator(strategyID, courseID, userID string, cards content.Catalog, ratings ratingSource, weight float64, log *slog.Logger) *AdaptiveNavigator {
	if weight <= 0 {
		weight = 1.0
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdaptiveNavigator{
		strategyID: strategyID,
		courseID:   courseID,
		userID:     userID,
		cards:      cards,
		ratings:    ratings,
		weight:     weight,
		log:        log.With("component", "navigator", "strategy", strategyID),
	}
}

// SetEphemeralHints stores per-replan biases; they apply to the next fetch
// only.
func (n *AdaptiveNavigator) SetEphemeralHints(hints map[string]float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hints = hints
}

// takeHint consumes this strategy's pending bias, if any.
func (n *AdaptiveNavigator) takeHint() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := n.hints[n.strategyID]
	n.hints = nil
	return h
}

func (n *AdaptiveNavigator) GetNewCards(ctx context.Context, count int) ([]content.WeightedCard, error) {
	if count <= 0 {
		count = adaptiveNewBatch
	}
	ids, err := n.cards.NewCardIDs(ctx, n.courseID, count)
	if err != nil {
		return nil, fmt.Errorf("fetch new cards: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	reg, err := n.ratings.GetRegistration(ctx, n.courseID, n.userID)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	eloData, err := n.ratings.GetCardEloData(ctx, n.courseID, ids)
	if err != nil {
		return nil, fmt.Errorf("load card ratings: %w", err)
	}

	hint := n.takeHint()
	boost := content.BoostFactor(0.5+hint/2, 1.0)

	cards := make([]content.WeightedCard, 0, len(ids))
	for _, id := range ids {
		cardElo := float64(elo.DefaultRating)
		if data, ok := eloData[id]; ok {
			cardElo = data.Global
		}
		score := content.EloProximityScore(reg.Elo, cardElo)
		score = content.ClampScore(score * n.weight * boost)
		cards = append(cards, content.WeightedCard{
			CardID:     id,
			CourseID:   n.courseID,
			Score:      score,
			Source:     content.SourceNew,
			Provenance: n.strategyID,
		})
	}
	return cards, nil
}

func (n *AdaptiveNavigator) GetPendingReviews(ctx context.Context) ([]content.WeightedCard, error) {
	reviews, err := n.cards.PendingReviews(ctx, n.courseID)
	if err != nil {
		return nil, fmt.Errorf("fetch pending reviews: %w", err)
	}
	cards := make([]content.WeightedCard, 0, len(reviews))
	for _, r := range reviews {
		cards = append(cards, content.WeightedCard{
			CardID:     r.CardID,
			CourseID:   r.CourseID,
			Score:      1.0,
			Source:     content.SourceReview,
			ReviewID:   r.ReviewID,
			Provenance: n.strategyID,
		})
	}
	return cards, nil
}

// GetWeightedCards serves due reviews first and fills the remainder with
// proximity-scored new cards.
func (n *AdaptiveNavigator) GetWeightedCards(ctx context.Context, limit int) ([]content.WeightedCard, error) {
	reviews, err := n.GetPendingReviews(ctx)
	if err != nil {
		return nil, err
	}
	if len(reviews) > limit {
		reviews = reviews[:limit]
	}
	remaining := limit - len(reviews)
	if remaining <= 0 {
		return reviews, nil
	}
	fresh, err := n.GetNewCards(ctx, remaining)
	if err != nil {
		return nil, err
	}
	return append(reviews, fresh...), nil
}
