package elo

import (
	"context"
	"log/slog"
	"sync"
)

// GlobalTag is the pseudo-tag carrying a card's overall rating alongside any
// per-concept tag ratings.
const GlobalTag = "_global"

// CardEloData is a card's rating state. Tags holds per-concept ratings keyed
// by tag; Count is the total number of interactions.
type CardEloData struct {
	CardID string
	Global float64
	Tags   map[string]float64
	Count  int
}

// CourseRegistration is the per-user, per-course record holding the user's
// current rating. It is mutated in place by the service and persisted by the
// store write.
type CourseRegistration struct {
	CourseID string
	UserID   string
	Elo      float64
	Tags     map[string]float64
}

// TagElo returns the user's rating for a tag, falling back to the course
// rating when the tag has never been touched.
func (r *CourseRegistration) TagElo(tag string) float64 {
	if v, ok := r.Tags[tag]; ok {
		return v
	}
	return r.Elo
}

// CourseStore is the slice of course persistence the service needs.
type CourseStore interface {
	GetCardEloData(ctx context.Context, courseID string, cardIDs []string) (map[string]CardEloData, error)
	UpdateCardElo(ctx context.Context, courseID string, data CardEloData) error
}

// UserStore persists the user's course registration.
type UserStore interface {
	UpdateUserElo(ctx context.Context, reg CourseRegistration) error
}

// SideEffects reports the outcome of the two independent rating writes.
// A failure in one never rolls back or blocks the other.
type SideEffects struct {
	UserErr error
	CardErr error
}

// Failed reports whether either write failed.
func (s SideEffects) Failed() bool { return s.UserErr != nil || s.CardErr != nil }

// Service applies rating updates after responses.
type Service struct {
	course CourseStore
	user   UserStore
	log    *slog.Logger
}

// NewService creates an ELO service.
func NewService(course CourseStore, user UserStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{course: course, user: user, log: log.With("component", "elo")}
}

// UpdateUserAndCardElo applies a scalar rating update for one response.
// userScore is the user's result in [0,1]. reg is mutated in place; both
// persistence writes run independently and their failures are logged, never
// propagated.
func (s *Service) UpdateUserAndCardElo(ctx context.Context, userScore float64, courseID, cardID string, reg *CourseRegistration) SideEffects {
	card := s.fetchCard(ctx, courseID, cardID)

	k := KFactor(card.Count + 1)
	newUser, newCard := Update(reg.Elo, card.Global, userScore, k)

	reg.Elo = newUser
	card.Global = newCard
	card.Count++

	return s.persist(ctx, courseID, cardID, *reg, card)
}

// UpdateTaggedElo applies the same update independently across a set of
// concept tags plus the global tag. tagScores maps tag to the user's result
// for that concept; the global update uses the mean of the tag scores.
func (s *Service) UpdateTaggedElo(ctx context.Context, tagScores map[string]float64, courseID, cardID string, reg *CourseRegistration) SideEffects {
	card := s.fetchCard(ctx, courseID, cardID)
	k := KFactor(card.Count + 1)

	if reg.Tags == nil {
		reg.Tags = make(map[string]float64, len(tagScores))
	}
	if card.Tags == nil {
		card.Tags = make(map[string]float64, len(tagScores))
	}

	overall := 0.0
	for tag, score := range tagScores {
		overall += score
		userTag := reg.TagElo(tag)
		cardTag, ok := card.Tags[tag]
		if !ok {
			cardTag = card.Global
		}
		newUser, newCard := Update(userTag, cardTag, score, k)
		reg.Tags[tag] = newUser
		card.Tags[tag] = newCard
	}
	if len(tagScores) > 0 {
		overall /= float64(len(tagScores))
	}

	newUser, newCard := Update(reg.Elo, card.Global, overall, k)
	reg.Elo = newUser
	reg.Tags[GlobalTag] = newUser
	card.Global = newCard
	card.Tags[GlobalTag] = newCard
	card.Count++

	return s.persist(ctx, courseID, cardID, *reg, card)
}

func (s *Service) fetchCard(ctx context.Context, courseID, cardID string) CardEloData {
	data, err := s.course.GetCardEloData(ctx, courseID, []string{cardID})
	if err != nil {
		s.log.Warn("fetch card elo failed, using default",
			"cardId", cardID, "error", err)
	}
	card, ok := data[cardID]
	if !ok {
		card = CardEloData{CardID: cardID, Global: DefaultRating}
	}
	return card
}

// persist writes both ratings independently. Neither write waits on or
// aborts the other; each failure is logged and reported in SideEffects.
func (s *Service) persist(ctx context.Context, courseID, cardID string, reg CourseRegistration, card CardEloData) SideEffects {
	var effects SideEffects
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := s.user.UpdateUserElo(ctx, reg); err != nil {
			s.log.Error("persist user elo failed",
				"courseId", courseID, "error", err)
			effects.UserErr = err
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.course.UpdateCardElo(ctx, courseID, card); err != nil {
			s.log.Error("persist card elo failed",
				"cardId", cardID, "error", err)
			effects.CardErr = err
		}
	}()

	wg.Wait()
	return effects
}
