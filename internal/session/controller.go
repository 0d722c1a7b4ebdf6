// Package session drives a timed study session: it plans content across
// sources, keeps the new/review/failed queues fed, serves hydrated cards
// under a time-budget selection policy, and records the session outcome.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/hydration"
	"github.com/studyflow/studyflow/internal/orchestration"
	"github.com/studyflow/studyflow/internal/queue"
	"github.com/studyflow/studyflow/internal/records"
	"github.com/studyflow/studyflow/internal/response"
)

const (
	// WellIndicatedScore is the minimum candidate score for a card to count
	// as genuinely recommended rather than filler.
	WellIndicatedScore = 0.10

	// MinWellIndicated is the planning floor: fewer well-indicated cards
	// after a plan is logged, not fatal.
	MinWellIndicated = 5

	// ReplanBuffer triggers a background replan once the remaining
	// well-indicated count drops this low; the buffer covers replan latency.
	ReplanBuffer = 3

	// MaxSkip bounds how many unserveable cards one NextCard call works
	// through before ending the session.
	MaxSkip = 20

	// DefaultContentLimit is the per-plan fetch size.
	DefaultContentLimit = 30

	// reviewSecsPerCard is the fixed time heuristic for a pending review.
	reviewSecsPerCard = 5

	// comfortMarginSecs is the slack required before new content is favored
	// over reviews and cleanup.
	comfortMarginSecs = 20
)

// Phase is the controller lifecycle state.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseActive    Phase = "active"
	PhaseEnded     Phase = "ended"
)

// ContentSource pairs a navigation strategy with the course it draws from.
type ContentSource struct {
	CourseID  string
	Navigator content.Navigator
}

// HistorySource loads per-card interaction histories. A (nil, nil) return
// means the card has no history yet.
type HistorySource interface {
	GetCardHistory(ctx context.Context, courseID, cardID string) (*records.CardHistory, error)
}

// ReviewCanceler removes a scheduled review whose card can no longer be
// served.
type ReviewCanceler interface {
	CancelReview(ctx context.Context, reviewID string)
}

// Config carries per-session parameters.
type Config struct {
	SessionID      string // generated when empty
	UserID         string
	SessionSeconds int
	ContentLimit   int   // 0 means DefaultContentLimit
	Seed           int64 // selection rng seed; 0 seeds from the clock
}

// Summary is the session roll-up returned by EndSession.
type Summary struct {
	SessionID string
	Questions int
	Correct   int
	Accuracy  float64
	Duration  time.Duration
}

// Controller is the top-level session state machine. It owns the three card
// queues, the hydration buffer, and the single-flight replan; the response
// processor and review canceler are injected.
type Controller struct {
	sources   []ContentSource
	mixer     content.SourceMixer
	processor *response.Processor
	reviews   ReviewCanceler
	histories HistorySource
	recorder  *orchestration.Recorder
	hydration *hydration.Service
	log       *slog.Logger

	sessionID    string
	userID       string
	contentLimit int

	newQ    *queue.ItemQueue[content.StudySessionItem]
	reviewQ *queue.ItemQueue[content.StudySessionItem]
	failedQ *queue.ItemQueue[content.StudySessionItem]

	ticker   *time.Ticker
	stopTick chan struct{}
	tickOnce sync.Once
	stopOnce sync.Once

	mu               sync.Mutex
	phase            Phase
	sessionCtx       context.Context
	secondsRemaining int
	wellIndicated    int
	replanInFlight   bool
	replanDone       chan struct{}
	current          *hydration.HydratedCard
	currentHistory   *records.CardHistory
	drawn            map[string]struct{}
	histCache        map[string]*records.CardHistory
	attemptSecs      map[string]float64
	attemptCount     map[string]int
	sessionRecords   []records.QuestionRecord
	startedAt        time.Time
	rng              *rand.Rand
	now              func() time.Time
}

// NewController wires a session controller. recorder may be nil when no
// source participates in outcome telemetry; reviews may be nil when review
// content is absent.
func NewController(
	sources []ContentSource,
	loader hydration.Loader,
	processor *response.Processor,
	reviews ReviewCanceler,
	histories HistorySource,
	recorder *orchestration.Recorder,
	cfg Config,
	log *slog.Logger,
) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.ContentLimit <= 0 {
		cfg.ContentLimit = DefaultContentLimit
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c := &Controller{
		sources:          sources,
		mixer:            content.QuotaRoundRobinMixer{},
		processor:        processor,
		reviews:          reviews,
		histories:        histories,
		recorder:         recorder,
		log:              log.With("component", "session", "sessionId", cfg.SessionID),
		sessionID:        cfg.SessionID,
		userID:           cfg.UserID,
		contentLimit:     cfg.ContentLimit,
		newQ:             queue.New[content.StudySessionItem](),
		reviewQ:          queue.New[content.StudySessionItem](),
		failedQ:          queue.New[content.StudySessionItem](),
		stopTick:         make(chan struct{}),
		phase:            PhasePreparing,
		secondsRemaining: cfg.SessionSeconds,
		drawn:            make(map[string]struct{}),
		histCache:        make(map[string]*records.CardHistory),
		attemptSecs:      make(map[string]float64),
		attemptCount:     make(map[string]int),
		rng:              rand.New(rand.NewSource(seed)),
		now:              time.Now,
	}
	c.hydration = hydration.NewService(loader, c.selectNextItemToHydrate, c.onHydrationSkip, log)
	return c
}

// PrepareSession fetches the initial weighted content, seeds the queues,
// arms hydration and starts the countdown tick. Every source must support
// weighted-card fetching; a single failing source is tolerated, all sources
// failing is fatal. The hydration buffer fills on the first draw.
func (c *Controller) PrepareSession(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhasePreparing {
		c.mu.Unlock()
		return fmt.Errorf("session %s already %s", c.sessionID, c.phase)
	}
	c.mu.Unlock()

	for i, src := range c.sources {
		if src.Navigator == nil {
			return fmt.Errorf("content source %d (%s) has no navigator", i, src.CourseID)
		}
	}

	mixed, err := c.fetchWeighted(ctx)
	if err != nil {
		return err
	}

	wellIndicated := 0
	for _, wc := range mixed {
		item := content.ItemFromCard(wc)
		var admitted bool
		if item.Status == content.StatusReview {
			admitted = c.reviewQ.Add(item, item.CardID)
		} else {
			admitted = c.newQ.Add(item, item.CardID)
		}
		if admitted && wc.Score >= WellIndicatedScore {
			wellIndicated++
		}
	}
	if wellIndicated < MinWellIndicated {
		c.log.Warn("few well-indicated cards after planning",
			"wellIndicated", wellIndicated, "minimum", MinWellIndicated)
	}

	c.mu.Lock()
	c.wellIndicated = wellIndicated
	c.sessionCtx = ctx
	c.startedAt = c.now()
	c.phase = PhaseActive
	c.mu.Unlock()

	c.startCountdown()

	c.log.Info("session prepared",
		"newCards", c.newQ.Len(), "reviews", c.reviewQ.Len(),
		"wellIndicated", wellIndicated)
	return nil
}

// RequestReplan re-fetches weighted content and atomically replaces the
// new-card queue. Single flight: a caller arriving while a replan is already
// running joins it instead of starting another. Optional hints are forwarded
// to sources that accept them and apply to this fetch only.
func (c *Controller) RequestReplan(ctx context.Context, hints map[string]float64) error {
	c.mu.Lock()
	if c.replanInFlight {
		done := c.replanDone
		c.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.replanInFlight = true
	done := make(chan struct{})
	c.replanDone = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.replanInFlight = false
		c.mu.Unlock()
		close(done)
	}()

	return c.replan(ctx, hints)
}

// replan performs one replan pass. The review queue is never repopulated
// here: review items were seeded at prepare time and re-adding them would
// duplicate scheduled work. Cards already drawn this session are excluded
// too — navigators only know about persisted history, so a card sitting in
// the hydration buffer, or served and dismissed moments ago, still looks
// unseen to them.
func (c *Controller) replan(ctx context.Context, hints map[string]float64) error {
	if hints != nil {
		for _, src := range c.sources {
			if hinted, ok := src.Navigator.(content.HintedNavigator); ok {
				hinted.SetEphemeralHints(hints)
			}
		}
	}

	mixed, err := c.fetchWeighted(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	seen := make(map[string]struct{}, len(c.drawn))
	for id := range c.drawn {
		seen[id] = struct{}{}
	}
	c.mu.Unlock()

	items := make([]content.StudySessionItem, 0, len(mixed))
	wellIndicated := 0
	for _, wc := range mixed {
		item := content.ItemFromCard(wc)
		if item.Status == content.StatusReview {
			continue
		}
		if _, drawn := seen[item.CardID]; drawn {
			continue
		}
		if c.reviewQ.Contains(item.CardID) || c.failedQ.Contains(item.CardID) {
			continue
		}
		items = append(items, item)
		if wc.Score >= WellIndicatedScore {
			wellIndicated++
		}
	}

	c.newQ.Replace(items, content.ItemID)

	c.mu.Lock()
	c.wellIndicated = wellIndicated
	c.mu.Unlock()

	if wellIndicated < MinWellIndicated {
		c.log.Warn("few well-indicated cards after replanning",
			"wellIndicated", wellIndicated, "minimum", MinWellIndicated)
	}
	c.log.Info("replanned new-card queue", "cards", len(items))
	return nil
}

// fetchWeighted queries every source and mixes the batches. A failing source
// is logged and skipped; all sources failing aborts the fetch.
func (c *Controller) fetchWeighted(ctx context.Context) ([]content.WeightedCard, error) {
	batches := make([]content.Batch, 0, len(c.sources))
	failures := 0
	for i, src := range c.sources {
		cards, err := src.Navigator.GetWeightedCards(ctx, c.contentLimit)
		if err != nil {
			c.log.Error("content source failed, continuing without it",
				"source", i, "courseId", src.CourseID, "error", err)
			failures++
			continue
		}
		batches = append(batches, content.Batch{SourceIndex: i, Weighted: cards})
	}
	if len(c.sources) > 0 && failures == len(c.sources) {
		return nil, fmt.Errorf("all %d content sources failed", failures)
	}
	return c.mixer.Mix(batches, c.contentLimit), nil
}

// NextCard dismisses the current card per action and serves the next
// hydrated card. It returns (nil, nil) when the session has run out of
// content, and waits for any in-flight replan first so freshly planned
// content is reflected in the draw.
func (c *Controller) NextCard(ctx context.Context, action response.NextCardAction) (*hydration.HydratedCard, error) {
	c.dismissCurrent(action)

	c.mu.Lock()
	inFlight := c.replanInFlight
	done := c.replanDone
	c.mu.Unlock()
	if inFlight {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for skips := 0; skips < MaxSkip; skips++ {
		c.hydration.EnsureHydratedCards(ctx)
		card, err := c.hydration.WaitForHydratedCard(ctx)
		if err != nil {
			return nil, err
		}
		if card == nil {
			c.markEnded()
			return nil, nil
		}
		if card.Doc == nil {
			c.log.Warn("hydrated card missing document, skipping",
				"cardId", card.Item.CardID)
			c.cancelStaleReview(card.Item)
			continue
		}

		h := c.historyFor(ctx, card)
		h.SessionViews++

		c.mu.Lock()
		c.current = card
		c.currentHistory = h
		c.mu.Unlock()
		return card, nil
	}

	c.log.Warn("gave up drawing after repeated skips", "skips", MaxSkip)
	c.markEnded()
	return nil, nil
}

// dismissCurrent applies the processor's navigation action to the card being
// left: a marked-failed card re-queues with its document retained so the
// revisit never refetches, everything else frees the hydration slot.
func (c *Controller) dismissCurrent(action response.NextCardAction) {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.currentHistory = nil
	c.mu.Unlock()
	if current == nil {
		return
	}

	switch action {
	case response.ActionMarkedFailed:
		failed := current.Item.AsFailed()
		c.failedQ.Add(failed, failed.CardID)
		c.hydration.Retain(current)
	default:
		c.hydration.Release(current.Item.CardID)
	}
}

// historyFor returns the cached session history for a card, loading or
// creating it on first sight. Load failures degrade to a fresh history.
func (c *Controller) historyFor(ctx context.Context, card *hydration.HydratedCard) *records.CardHistory {
	c.mu.Lock()
	if h, ok := c.histCache[card.Item.CardID]; ok {
		c.mu.Unlock()
		return h
	}
	c.mu.Unlock()

	var h *records.CardHistory
	if c.histories != nil {
		loaded, err := c.histories.GetCardHistory(ctx, card.Item.CourseID, card.Item.CardID)
		if err != nil {
			c.log.Warn("load card history failed, starting fresh",
				"cardId", card.Item.CardID, "error", err)
		} else {
			h = loaded
		}
	}
	if h == nil {
		h = &records.CardHistory{
			CardID:   card.Item.CardID,
			CourseID: card.Item.CourseID,
			Kind:     records.CardKind(card.Doc.Kind),
		}
	}

	c.mu.Lock()
	c.histCache[card.Item.CardID] = h
	c.mu.Unlock()
	return h
}

// SubmitResponse appends the record to the current card's history and runs
// the response state machine. The caller advances with NextCard when the
// result says to.
func (c *Controller) SubmitResponse(ctx context.Context, rec records.Record) (response.Result, error) {
	c.mu.Lock()
	current := c.current
	h := c.currentHistory
	c.mu.Unlock()
	if current == nil || h == nil {
		return response.Result{}, fmt.Errorf("no card is awaiting a response")
	}

	h.Append(rec)

	if q, ok := rec.(records.QuestionRecord); ok {
		c.mu.Lock()
		c.sessionRecords = append(c.sessionRecords, q)
		c.attemptSecs[q.CardID] += float64(q.TimeSpentMs) / 1000.0
		c.attemptCount[q.CardID]++
		c.mu.Unlock()
	}

	return c.processor.Process(ctx, rec, h, current.Item), nil
}

// EndSession stops the countdown, waits for in-flight side effects, records
// the session outcome per course, and returns the summary. Idempotent.
func (c *Controller) EndSession(ctx context.Context) Summary {
	c.markEnded()
	c.processor.Wait()

	c.mu.Lock()
	recs := make([]records.QuestionRecord, len(c.sessionRecords))
	copy(recs, c.sessionRecords)
	startedAt := c.startedAt
	c.mu.Unlock()
	endedAt := c.now()

	if c.recorder != nil {
		byCourse := make(map[string][]records.QuestionRecord)
		for _, q := range recs {
			byCourse[q.CourseID] = append(byCourse[q.CourseID], q)
		}
		for courseID, courseRecs := range byCourse {
			c.recorder.RecordUserOutcome(ctx, courseID, c.userID, startedAt, endedAt, courseRecs)
		}
	}

	correct := 0
	for _, q := range recs {
		if q.IsCorrect {
			correct++
		}
	}
	summary := Summary{
		SessionID: c.sessionID,
		Questions: len(recs),
		Correct:   correct,
		Duration:  endedAt.Sub(startedAt),
	}
	if summary.Questions > 0 {
		summary.Accuracy = float64(correct) / float64(summary.Questions)
	}
	c.log.Info("session ended",
		"questions", summary.Questions, "correct", correct,
		"duration", summary.Duration.Round(time.Second))
	return summary
}

// markEnded transitions to ended and stops the countdown. Safe to call more
// than once.
func (c *Controller) markEnded() {
	c.mu.Lock()
	c.phase = PhaseEnded
	c.mu.Unlock()
	c.stopOnce.Do(func() {
		if c.ticker != nil {
			c.ticker.Stop()
		}
		close(c.stopTick)
	})
}

// onHydrationSkip is the hydration service's drop callback: a review item
// whose document no longer loads must not keep its stale appointment.
func (c *Controller) onHydrationSkip(item content.StudySessionItem, err error) {
	c.cancelStaleReview(item)
}

func (c *Controller) cancelStaleReview(item content.StudySessionItem) {
	if item.ReviewID == "" || c.reviews == nil {
		return
	}
	c.mu.Lock()
	ctx := c.sessionCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	c.reviews.CancelReview(ctx, item.ReviewID)
}

// startCountdown ticks the remaining seconds down once per second until the
// budget reaches zero or the session ends.
func (c *Controller) startCountdown() {
	c.tickOnce.Do(func() {
		c.ticker = time.NewTicker(time.Second)
		go func() {
			for {
				select {
				case <-c.stopTick:
					return
				case <-c.ticker.C:
					c.mu.Lock()
					if c.secondsRemaining > 0 {
						c.secondsRemaining--
					}
					c.mu.Unlock()
				}
			}
		}()
	})
}

// SecondsRemaining reports the unspent session time budget.
func (c *Controller) SecondsRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secondsRemaining
}

// Phase reports the lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string { return c.sessionID }
