// Package response routes graded responses to the SRS and rating services
// and decides the navigation action for the session controller.
package response

import (
	"context"
	"log/slog"
	"sync"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/elo"
	"github.com/studyflow/studyflow/internal/records"
	"github.com/studyflow/studyflow/internal/srs"
)

// NextCardAction tells the session controller what to do with the current
// card after a response.
type NextCardAction string

const (
	// ActionDismissSuccess: the card is done, free its hydration slot.
	ActionDismissSuccess NextCardAction = "dismiss-success"
	// ActionMarkedFailed: re-queue the card for later this session.
	ActionMarkedFailed NextCardAction = "marked-failed"
	// ActionDismissFailed: the card is done for this session, counted as a miss.
	ActionDismissFailed NextCardAction = "dismiss-failed"
	// ActionNone: stay on the card for another attempt.
	ActionNone NextCardAction = "none"
)

// Result is the navigation outcome of processing one response.
type Result struct {
	Action             NextCardAction
	Deferred           bool // navigation suppressed by the record's DeferAdvance flag
	ShouldLoadNextCard bool
}

// Limits bound how often a card may be retried.
type Limits struct {
	MaxAttemptsPerView int
	MaxSessionViews    int
}

// DefaultLimits allows three attempts per view and two views per session.
func DefaultLimits() Limits {
	return Limits{MaxAttemptsPerView: 3, MaxSessionViews: 2}
}

// Scheduler is the slice of the SRS service the processor calls.
type Scheduler interface {
	ScheduleReview(ctx context.Context, h *records.CardHistory, item content.StudySessionItem) (*srs.ScheduledCard, error)
}

// Rater is the slice of the ELO service the processor calls.
type Rater interface {
	UpdateUserAndCardElo(ctx context.Context, userScore float64, courseID, cardID string, reg *elo.CourseRegistration) elo.SideEffects
	UpdateTaggedElo(ctx context.Context, tagScores map[string]float64, courseID, cardID string, reg *elo.CourseRegistration) elo.SideEffects
}

// Processor is the response-handling state machine. SRS and rating writes are
// best-effort side effects: they never block the returned Result and their
// failures are logged, not surfaced.
type Processor struct {
	scheduler Scheduler
	rater     Rater
	reg       *elo.CourseRegistration
	limits    Limits
	log       *slog.Logger

	// OnSideEffects, if set, receives the outcome of each background rating
	// write. Tests assert on side effects through this hook.
	OnSideEffects func(elo.SideEffects)

	wg sync.WaitGroup
	// ratingMu serializes rating updates: the registration doc is mutated
	// in place and is owned by the single active session.
	ratingMu sync.Mutex
}

// NewProcessor creates a processor bound to one session's registration doc.
func NewProcessor(scheduler Scheduler, rater Rater, reg *elo.CourseRegistration, limits Limits, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		scheduler: scheduler,
		rater:     rater,
		reg:       reg,
		limits:    limits,
		log:       log.With("component", "response"),
	}
}

// Process decides the navigation action for a response and fires the SRS and
// rating side effects. h must already contain rec as its latest record.
func (p *Processor) Process(ctx context.Context, rec records.Record, h *records.CardHistory, item content.StudySessionItem) Result {
	q, ok := rec.(records.QuestionRecord)
	if !ok {
		// Non-question content has nothing to grade.
		return Result{Action: ActionDismissSuccess, ShouldLoadNextCard: true}
	}

	var res Result
	switch {
	case q.IsCorrect && q.PriorAttempts == 0:
		p.fireSuccessEffects(ctx, q, h, item)
		res = Result{Action: ActionDismissSuccess, ShouldLoadNextCard: true}

	case q.IsCorrect:
		// A correct retry clears nothing: the card already failed this
		// session, navigation still advances.
		res = Result{Action: ActionMarkedFailed, ShouldLoadNextCard: true}

	default:
		res = p.processIncorrect(ctx, q, h)
	}

	if q.DeferAdvance && res.ShouldLoadNextCard {
		res.Deferred = true
		res.ShouldLoadNextCard = false
	}
	return res
}

func (p *Processor) processIncorrect(ctx context.Context, q records.QuestionRecord, h *records.CardHistory) Result {
	// Penalize the rating only on the first failure of a view, and never on
	// the card's very first interaction ever.
	if len(h.Records) != 1 && q.PriorAttempts == 0 {
		p.fireRating(ctx, q, 0, nil)
	}

	attempts := len(h.Records)
	switch {
	case attempts < p.limits.MaxAttemptsPerView:
		return Result{Action: ActionNone, ShouldLoadNextCard: false}
	case h.SessionViews < p.limits.MaxSessionViews:
		return Result{Action: ActionMarkedFailed, ShouldLoadNextCard: true}
	default:
		// Out of attempts and out of views: final penalty.
		p.fireRating(ctx, q, 0, nil)
		return Result{Action: ActionDismissFailed, ShouldLoadNextCard: true}
	}
}

// fireSuccessEffects schedules the next review and applies the rating update
// for a first-attempt success.
func (p *Processor) fireSuccessEffects(ctx context.Context, q records.QuestionRecord, h *records.CardHistory, item content.StudySessionItem) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.scheduler.ScheduleReview(ctx, h, item); err != nil {
			p.log.Error("schedule review failed", "cardId", h.CardID, "error", err)
		}
	}()

	// The Performance union is matched here, once: tagged performance routes
	// to the per-tag variant, everything else to the scalar update.
	switch perf := q.Performance.(type) {
	case records.TaggedPerformance:
		p.fireRating(ctx, q, 0, perf)
	default:
		score := 1.0
		if q.Performance != nil {
			score = q.Performance.OverallScore()
		}
		p.fireRating(ctx, q, score, nil)
	}
}

// fireRating runs a rating update in the background. A non-nil tagScores
// selects the per-tag variant.
func (p *Processor) fireRating(ctx context.Context, q records.QuestionRecord, score float64, tagScores map[string]float64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.ratingMu.Lock()
		defer p.ratingMu.Unlock()
		var effects elo.SideEffects
		if tagScores != nil {
			effects = p.rater.UpdateTaggedElo(ctx, tagScores, q.CourseID, q.CardID, p.reg)
		} else {
			effects = p.rater.UpdateUserAndCardElo(ctx, score, q.CourseID, q.CardID, p.reg)
		}
		if p.OnSideEffects != nil {
			p.OnSideEffects(effects)
		}
	}()
}

// Wait blocks until all in-flight side effects settle. Called at session end
// and by tests.
func (p *Processor) Wait() { p.wg.Wait() }
