package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/elo"
	"github.com/studyflow/studyflow/internal/orchestration"
	"github.com/studyflow/studyflow/internal/records"
	"github.com/studyflow/studyflow/internal/response"
	"github.com/studyflow/studyflow/internal/srs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNavigator serves pre-canned weighted batches. When gate is set, every
// fetch after the first blocks until the gate closes, which lets tests hold
// a replan in flight.
type fakeNavigator struct {
	mu      sync.Mutex
	batches [][]content.WeightedCard
	calls   int
	err     error
	gate    chan struct{}
	hints   map[string]float64
}

func (f *fakeNavigator) GetNewCards(ctx context.Context, n int) ([]content.WeightedCard, error) {
	return nil, nil
}

func (f *fakeNavigator) GetPendingReviews(ctx context.Context) ([]content.WeightedCard, error) {
	return nil, nil
}

func (f *fakeNavigator) GetWeightedCards(ctx context.Context, limit int) ([]content.WeightedCard, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil && call > 0 {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	idx := call
	if idx >= len(f.batches) {
		idx = len(f.batches) - 1
	}
	return append([]content.WeightedCard(nil), f.batches[idx]...), nil
}

func (f *fakeNavigator) SetEphemeralHints(hints map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints = hints
}

func (f *fakeNavigator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLoader synthesizes question documents and records per-card load counts.
type fakeLoader struct {
	mu      sync.Mutex
	calls   map[string]int
	failIDs map[string]bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{calls: map[string]int{}, failIDs: map[string]bool{}}
}

func (f *fakeLoader) LoadCard(ctx context.Context, courseID, cardID string) (*content.CardDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[cardID]++
	if f.failIDs[cardID] {
		return nil, errors.New("document gone")
	}
	return &content.CardDocument{
		CardID:   cardID,
		CourseID: courseID,
		Kind:     "question",
		Body:     "body of " + cardID,
	}, nil
}

func (f *fakeLoader) loadCount(cardID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cardID]
}

type recordingCanceler struct {
	mu        sync.Mutex
	reviewIDs []string
}

func (r *recordingCanceler) CancelReview(ctx context.Context, reviewID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviewIDs = append(r.reviewIDs, reviewID)
}

func (r *recordingCanceler) cancelled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reviewIDs...)
}

type nopScheduler struct{}

func (nopScheduler) ScheduleReview(ctx context.Context, h *records.CardHistory, item content.StudySessionItem) (*srs.ScheduledCard, error) {
	return &srs.ScheduledCard{}, nil
}

type nopRater struct{}

func (nopRater) UpdateUserAndCardElo(ctx context.Context, userScore float64, courseID, cardID string, reg *elo.CourseRegistration) elo.SideEffects {
	return elo.SideEffects{}
}

func (nopRater) UpdateTaggedElo(ctx context.Context, tagScores map[string]float64, courseID, cardID string, reg *elo.CourseRegistration) elo.SideEffects {
	return elo.SideEffects{}
}

type memOutcomes struct {
	mu   sync.Mutex
	recs []orchestration.UserOutcomeRecord
}

func (m *memOutcomes) PutUserOutcome(ctx context.Context, rec orchestration.UserOutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memOutcomes) UserOutcomes(ctx context.Context, courseID string) ([]orchestration.UserOutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orchestration.UserOutcomeRecord(nil), m.recs...), nil
}

func testProcessor() *response.Processor {
	return response.NewProcessor(
		nopScheduler{}, nopRater{},
		&elo.CourseRegistration{CourseID: "course"},
		response.DefaultLimits(), testLogger())
}

func newCard(id string, score float64) content.WeightedCard {
	return content.WeightedCard{CardID: id, CourseID: "course", Score: score, Source: content.SourceNew}
}

func newReview(id, reviewID string, score float64) content.WeightedCard {
	return content.WeightedCard{CardID: id, CourseID: "course", Score: score, Source: content.SourceReview, ReviewID: reviewID}
}

func newController(navs []content.Navigator, loader *fakeLoader, canceler ReviewCanceler, recorder *orchestration.Recorder, seconds int) *Controller {
	sources := make([]ContentSource, 0, len(navs))
	for _, nav := range navs {
		sources = append(sources, ContentSource{CourseID: "course", Navigator: nav})
	}
	return NewController(sources, loader, testProcessor(), canceler, nil, recorder, Config{
		UserID:         "user-1",
		SessionSeconds: seconds,
		Seed:           42,
	}, testLogger())
}

func questionRecord(cardID string, correct bool, priorAttempts int) records.QuestionRecord {
	return records.QuestionRecord{
		CardRecord: records.CardRecord{
			CardID:      cardID,
			CourseID:    "course",
			Timestamp:   time.Now(),
			TimeSpentMs: 4000,
		},
		IsCorrect:     correct,
		Performance:   records.ScalarPerformance(0.9),
		PriorAttempts: priorAttempts,
	}
}

func TestPrepareSessionSeedsQueues(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{
		newCard("n1", 0.8),
		newCard("n2", 0.6),
		newReview("r1", "rev-1", 0.9),
	}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)

	require.NoError(t, c.PrepareSession(context.Background()))

	info := c.GetDebugInfo()
	assert.Equal(t, PhaseActive, info.Phase)
	assert.Equal(t, 2, info.NewQueueLen)
	assert.Equal(t, 1, info.ReviewQueueLen)
	assert.Equal(t, 0, info.FailedQueueLen)
	assert.Equal(t, 3, info.WellIndicatedRemaining)
	assert.False(t, info.Replan.InProgress)
}

func TestPrepareSessionRejectsNilNavigator(t *testing.T) {
	c := NewController([]ContentSource{{CourseID: "course"}}, newFakeLoader(), testProcessor(),
		nil, nil, nil, Config{SessionSeconds: 60}, testLogger())

	err := c.PrepareSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no navigator")
}

func TestPrepareSessionAllSourcesFailedIsFatal(t *testing.T) {
	bad := &fakeNavigator{err: errors.New("backend down")}
	c := newController([]content.Navigator{bad}, newFakeLoader(), nil, nil, 300)

	err := c.PrepareSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 content sources failed")
}

func TestPrepareSessionToleratesSingleSourceFailure(t *testing.T) {
	good := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.7)}}}
	bad := &fakeNavigator{err: errors.New("backend down")}
	c := newController([]content.Navigator{good, bad}, newFakeLoader(), nil, nil, 300)

	require.NoError(t, c.PrepareSession(context.Background()))
	assert.Equal(t, 1, c.GetDebugInfo().NewQueueLen)
}

func TestNextCardServesHydratedCard(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	loader := newFakeLoader()
	c := newController([]content.Navigator{nav}, loader, nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "n1", card.Item.CardID)
	require.NotNil(t, card.Doc)
	assert.Equal(t, "body of n1", card.Doc.Body)
}

func TestNextCardEndsSessionWhenTimeExhaustedAndNoFailures(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 0)
	require.NoError(t, c.PrepareSession(context.Background()))

	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	assert.Nil(t, card)

	info := c.GetDebugInfo()
	assert.Equal(t, PhaseEnded, info.Phase)
	assert.False(t, info.Replan.InProgress)
}

func TestTimeExhaustedServesOnlyFailedCards(t *testing.T) {
	nav := &fakeNavigator{}
	loader := newFakeLoader()
	c := newController([]content.Navigator{nav}, loader, nil, nil, 0)
	require.NoError(t, c.PrepareSession(context.Background()))

	c.failedQ.Add(content.StudySessionItem{
		CardID: "f1", CourseID: "course", Status: content.StatusFailedNew,
	}, "f1")

	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "f1", card.Item.CardID)
	assert.True(t, card.Item.Failed())
}

func TestMarkedFailedRequeuesWithRetainedDocument(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	loader := newFakeLoader()
	c := newController([]content.Navigator{nav}, loader, nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	first, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "n1", first.Item.CardID)

	second, err := c.NextCard(context.Background(), response.ActionMarkedFailed)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "n1", second.Item.CardID)
	assert.True(t, second.Item.Failed())

	// The failed revisit reuses the retained document instead of refetching.
	assert.Equal(t, 1, loader.loadCount("n1"))
}

func TestStaleReviewCancelledWhenHydrationFails(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{
		newCard("n1", 0.8),
		newReview("r1", "rev-1", 0.9),
	}}}
	loader := newFakeLoader()
	loader.failIDs["r1"] = true
	canceler := &recordingCanceler{}
	c := newController([]content.Navigator{nav}, loader, canceler, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, card)

	require.Eventually(t, func() bool {
		return len(canceler.cancelled()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"rev-1"}, canceler.cancelled())
}

func TestAutoReplanIsSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	nav := &fakeNavigator{
		batches: [][]content.WeightedCard{{
			newCard("n1", 1.0), newCard("n2", 1.0), newCard("n3", 1.0), newCard("n4", 1.0),
		}},
		gate: gate,
	}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 600)
	require.NoError(t, c.PrepareSession(context.Background()))
	require.Equal(t, 4, c.GetDebugInfo().WellIndicatedRemaining)

	// Drawing a well-indicated card drops the remainder to the replan buffer
	// and must trigger exactly one background replan.
	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, card)

	require.Eventually(t, func() bool {
		return nav.callCount() == 2 && c.GetDebugInfo().Replan.InProgress
	}, 2*time.Second, 10*time.Millisecond)

	// A concurrent caller joins the in-flight replan instead of starting
	// another fetch.
	joined := make(chan error, 1)
	go func() {
		joined <- c.RequestReplan(context.Background(), nil)
	}()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, nav.callCount())

	close(gate)
	select {
	case err := <-joined:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("joined replan never resolved")
	}

	require.Eventually(t, func() bool {
		return !c.GetDebugInfo().Replan.InProgress
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, nav.callCount())
}

func TestReplanSkipsReviewQueueAndForwardsHints(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{
		newCard("n1", 0.8),
		newCard("n2", 0.6),
		newReview("r1", "rev-1", 0.9),
	}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))
	require.Equal(t, 1, c.GetDebugInfo().ReviewQueueLen)

	hints := map[string]float64{"strategy-a": 0.5}
	require.NoError(t, c.RequestReplan(context.Background(), hints))

	info := c.GetDebugInfo()
	assert.Equal(t, 2, info.NewQueueLen, "replan replaces only the new-card queue")
	assert.Equal(t, 1, info.ReviewQueueLen, "review queue is never repopulated")
	assert.Equal(t, hints, nav.hints)

	for _, item := range c.newQ.Snapshot() {
		assert.Equal(t, content.StatusNew, item.Status)
	}
}

func TestSubmitResponseWithoutCurrentCard(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	_, err := c.SubmitResponse(context.Background(), questionRecord("n1", true, 0))
	require.Error(t, err)
}

func TestSessionFlowRecordsOutcome(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	outcomes := &memOutcomes{}
	recorder := orchestration.NewRecorder(outcomes, nil, testLogger())
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, recorder, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	card, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)
	require.NotNil(t, card)

	res, err := c.SubmitResponse(context.Background(), questionRecord("n1", true, 0))
	require.NoError(t, err)
	assert.Equal(t, response.ActionDismissSuccess, res.Action)
	assert.True(t, res.ShouldLoadNextCard)

	summary := c.EndSession(context.Background())
	assert.Equal(t, 1, summary.Questions)
	assert.Equal(t, 1, summary.Correct)
	assert.InDelta(t, 1.0, summary.Accuracy, 1e-9)

	recs, err := outcomes.UserOutcomes(context.Background(), "course")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "course", recs[0].CourseID)
	assert.Equal(t, "user-1", recs[0].UserID)
	// Perfect accuracy sits above the target zone, so the signal is damped.
	assert.InDelta(t, 0.75, recs[0].OutcomeValue, 1e-9)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{newCard("n1", 0.8)}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	first := c.EndSession(context.Background())
	second := c.EndSession(context.Background())
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, PhaseEnded, c.Phase())
}

func TestDebugInfoTracksDequeues(t *testing.T) {
	nav := &fakeNavigator{batches: [][]content.WeightedCard{{
		newCard("n1", 0.8), newCard("n2", 0.6),
	}}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	_, err := c.NextCard(context.Background(), response.ActionNone)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.GetDebugInfo().NewDequeues == 2
	}, 2*time.Second, 10*time.Millisecond, "hydration drains both new cards into the buffer")
}

func TestReplanDoesNotReserveAlreadyServedCards(t *testing.T) {
	cards := make([]content.WeightedCard, 0, 6)
	for i := 1; i <= 6; i++ {
		cards = append(cards, newCard(fmt.Sprintf("n%d", i), 1.0))
	}
	// The navigator reports the same batch on every fetch, as a store-backed
	// source does for cards that never earned a persisted history row.
	nav := &fakeNavigator{batches: [][]content.WeightedCard{cards}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	served := map[string]int{}
	for i := 0; i < 50; i++ {
		card, err := c.NextCard(context.Background(), response.ActionDismissSuccess)
		require.NoError(t, err)
		if card == nil {
			break
		}
		served[card.Item.CardID]++
	}

	assert.Len(t, served, 6)
	for id, n := range served {
		assert.Equalf(t, 1, n, "card %s served %d times", id, n)
	}
	assert.Equal(t, PhaseEnded, c.Phase())
	assert.Eventually(t, func() bool { return nav.callCount() > 1 },
		time.Second, 10*time.Millisecond, "at least one replan must have run")
}

func TestSelectionExhaustsAllQueues(t *testing.T) {
	cards := make([]content.WeightedCard, 0, 6)
	for i := 1; i <= 6; i++ {
		cards = append(cards, newCard(fmt.Sprintf("n%d", i), 0.05))
	}
	nav := &fakeNavigator{batches: [][]content.WeightedCard{cards}}
	c := newController([]content.Navigator{nav}, newFakeLoader(), nil, nil, 300)
	require.NoError(t, c.PrepareSession(context.Background()))

	seen := map[string]bool{}
	for {
		card, err := c.NextCard(context.Background(), response.ActionDismissSuccess)
		require.NoError(t, err)
		if card == nil {
			break
		}
		seen[card.Item.CardID] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, PhaseEnded, c.Phase())
}
