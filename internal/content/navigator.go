package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Navigator is the contract every content-selection strategy satisfies.
// Implementations own their heuristics; the session engine only consumes
// weighted candidates.
type Navigator interface {
	// GetNewCards returns up to n unseen candidates. n <= 0 means the
	// strategy's default batch.
	GetNewCards(ctx context.Context, n int) ([]WeightedCard, error)

	// GetPendingReviews returns candidates whose scheduled review time has
	// arrived.
	GetPendingReviews(ctx context.Context) ([]WeightedCard, error)

	// GetWeightedCards returns up to limit scored candidates mixing new and
	// review content.
	GetWeightedCards(ctx context.Context, limit int) ([]WeightedCard, error)
}

// HintedNavigator is implemented by strategies that accept ephemeral
// per-replan hints (strategy id -> bias). Hints apply to the next fetch only.
type HintedNavigator interface {
	Navigator
	SetEphemeralHints(hints map[string]float64)
}

// ReviewRef is a scheduled review surfaced by a review source.
type ReviewRef struct {
	ReviewID string
	CardID   string
	CourseID string
}

// Catalog is the slice of course data the default navigator needs.
type Catalog interface {
	NewCardIDs(ctx context.Context, courseID string, n int) ([]string, error)
	PendingReviews(ctx context.Context, courseID string) ([]ReviewRef, error)
}

// DefaultNavigator is the baseline strategy: every new card scores 1.0 with
// source "new", every due review scores 1.0 with source "review". Real
// strategies override this with domain scoring.
type DefaultNavigator struct {
	CourseID string
	Cards    Catalog
}

const defaultNewBatch = 10

func (n *DefaultNavigator) GetNewCards(ctx context.Context, count int) ([]WeightedCard, error) {
	if count <= 0 {
		count = defaultNewBatch
	}
	ids, err := n.Cards.NewCardIDs(ctx, n.CourseID, count)
	if err != nil {
		return nil, fmt.Errorf("fetch new cards: %w", err)
	}
	cards := make([]WeightedCard, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, WeightedCard{
			CardID:     id,
			CourseID:   n.CourseID,
			Score:      1.0,
			Source:     SourceNew,
			Provenance: "default",
		})
	}
	return cards, nil
}

func (n *DefaultNavigator) GetPendingReviews(ctx context.Context) ([]WeightedCard, error) {
	reviews, err := n.Cards.PendingReviews(ctx, n.CourseID)
	if err != nil {
		return nil, fmt.Errorf("fetch pending reviews: %w", err)
	}
	cards := make([]WeightedCard, 0, len(reviews))
	for _, r := range reviews {
		cards = append(cards, WeightedCard{
			CardID:     r.CardID,
			CourseID:   r.CourseID,
			Score:      1.0,
			Source:     SourceReview,
			ReviewID:   r.ReviewID,
			Provenance: "default",
		})
	}
	return cards, nil
}

func (n *DefaultNavigator) GetWeightedCards(ctx context.Context, limit int) ([]WeightedCard, error) {
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

// Factory builds a navigator for a course from shared course data.
type Factory func(courseID string, cards Catalog) Navigator

// Registry maps strategy-type identifiers to navigator factories. Strategies
// are registered explicitly rather than discovered by reflection.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry seeded with the default strategy.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("default", func(courseID string, cards Catalog) Navigator {
		return &DefaultNavigator{CourseID: courseID, Cards: cards}
	})
	return r
}

// Register adds or replaces a strategy factory.
func (r *Registry) Register(strategyType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strategyType] = f
}

// New builds a navigator of the given strategy type.
func (r *Registry) New(strategyType, courseID string, cards Catalog) (Navigator, error) {
	r.mu.RLock()
	f, ok := r.factories[strategyType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown navigation strategy %q", strategyType)
	}
	return f(courseID, cards), nil
}

// Types returns the registered strategy-type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
