package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyflow/studyflow/internal/content"
	"github.com/studyflow/studyflow/internal/elo"
	"github.com/studyflow/studyflow/internal/orchestration"
	"github.com/studyflow/studyflow/internal/records"
	"github.com/studyflow/studyflow/internal/srs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCardRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := content.CardDocument{
		CardID:   "c1",
		CourseID: "course",
		Kind:     "question",
		Body:     "What is 2+2?",
		Tags:     []string{"arithmetic"},
	}
	require.NoError(t, s.PutCard(ctx, doc))

	loaded, err := s.LoadCard(ctx, "course", "c1")
	require.NoError(t, err)
	assert.Equal(t, doc, *loaded)

	n, err := s.CardCount(ctx, "course")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadCardMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadCard(context.Background(), "course", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewCardIDsExcludesSeenCards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, s.PutCard(ctx, content.CardDocument{
			CardID: id, CourseID: "course", Kind: "question", Body: "q",
		}))
	}

	// A card with any history is no longer new.
	require.NoError(t, s.SaveCardHistory(ctx, &records.CardHistory{
		CardID: "c2", CourseID: "course", Kind: records.KindQuestion,
	}))

	ids, err := s.NewCardIDs(ctx, "course", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c3"}, ids)

	ids, err = s.NewCardIDs(ctx, "course", 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestScheduledReviews(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	due := srs.ScheduledCard{
		ReviewID: "r1", CardID: "c1", CourseID: "course",
		ReviewTime: now.Add(-time.Hour), ScheduledAt: now.Add(-48 * time.Hour),
		ScheduledFor: "user-1", SchedulingAgentID: "agent",
	}
	future := srs.ScheduledCard{
		ReviewID: "r2", CardID: "c2", CourseID: "course",
		ReviewTime: now.Add(24 * time.Hour), ScheduledAt: now,
		ScheduledFor: "user-1", SchedulingAgentID: "agent",
	}
	require.NoError(t, s.ScheduleCardReview(ctx, due))
	require.NoError(t, s.ScheduleCardReview(ctx, future))

	pending, err := s.PendingReviews(ctx, "course")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].ReviewID)
	assert.Equal(t, "c1", pending[0].CardID)

	all, err := s.ScheduledReviews(ctx, "course")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.RemoveScheduledCardReview(ctx, "r1"))
	pending, err = s.PendingReviews(ctx, "course")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Removing an unknown review is a no-op.
	require.NoError(t, s.RemoveScheduledCardReview(ctx, "r1"))
}

func TestCardHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Unix(1700000000, 0)

	h := &records.CardHistory{
		CardID:   "c1",
		CourseID: "course",
		Kind:     records.KindQuestion,
		Records: []records.Record{
			records.CardRecord{CardID: "c1", CourseID: "course", Timestamp: ts, TimeSpentMs: 1500},
			records.QuestionRecord{
				CardRecord:    records.CardRecord{CardID: "c1", CourseID: "course", Timestamp: ts.Add(time.Minute), TimeSpentMs: 4000},
				UserAnswer:    "4",
				IsCorrect:     true,
				Performance:   records.ScalarPerformance(0.9),
				PriorAttempts: 0,
			},
			records.QuestionRecord{
				CardRecord:  records.CardRecord{CardID: "c1", CourseID: "course", Timestamp: ts.Add(2 * time.Minute), TimeSpentMs: 2000},
				IsCorrect:   false,
				Performance: records.TaggedPerformance{"arithmetic": 0.3},
			},
		},
		BestIntervalSecs: 86400,
		SessionViews:     2,
	}
	require.NoError(t, s.SaveCardHistory(ctx, h))

	loaded, err := s.GetCardHistory(ctx, "course", "c1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, int64(86400), loaded.BestIntervalSecs)
	assert.Equal(t, records.KindQuestion, loaded.Kind)
	require.Len(t, loaded.Records, 3)

	// Session views are transient and never persisted.
	assert.Zero(t, loaded.SessionViews)

	_, isCard := loaded.Records[0].(records.CardRecord)
	assert.True(t, isCard)

	q1, ok := loaded.Records[1].(records.QuestionRecord)
	require.True(t, ok)
	assert.True(t, q1.IsCorrect)
	assert.Equal(t, "4", q1.UserAnswer)
	assert.InDelta(t, 0.9, q1.Performance.OverallScore(), 1e-9)

	q2, ok := loaded.Records[2].(records.QuestionRecord)
	require.True(t, ok)
	tagged, ok := q2.Performance.(records.TaggedPerformance)
	require.True(t, ok)
	assert.InDelta(t, 0.3, tagged["arithmetic"], 1e-9)
}

func TestGetCardHistoryMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)

	h, err := s.GetCardHistory(context.Background(), "course", "nope")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestRegistrationDefaultsOnFirstSight(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reg, err := s.GetRegistration(ctx, "course", "user-1")
	require.NoError(t, err)
	assert.InDelta(t, elo.DefaultRating, reg.Elo, 1e-9)
	assert.NotNil(t, reg.Tags)

	reg.Elo = 1142.5
	reg.Tags["algebra"] = 1080
	require.NoError(t, s.UpdateUserElo(ctx, *reg))

	again, err := s.GetRegistration(ctx, "course", "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 1142.5, again.Elo, 1e-9)
	assert.InDelta(t, 1080, again.Tags["algebra"], 1e-9)
}

func TestCardEloRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateCardElo(ctx, "course", elo.CardEloData{
		CardID: "c1",
		Global: 1050,
		Tags:   map[string]float64{"arithmetic": 1020},
		Count:  7,
	}))

	data, err := s.GetCardEloData(ctx, "course", []string{"c1", "c2"})
	require.NoError(t, err)
	require.Contains(t, data, "c1")
	assert.NotContains(t, data, "c2", "never-rated cards are absent")
	assert.InDelta(t, 1050, data["c1"].Global, 1e-9)
	assert.Equal(t, 7, data["c1"].Count)
	assert.InDelta(t, 1020, data["c1"].Tags["arithmetic"], 1e-9)

	empty, err := s.GetCardEloData(ctx, "course", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOutcomeDeterministicIDOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	end := time.Unix(1700000000, 0)

	rec := orchestration.UserOutcomeRecord{
		CourseID:     "course",
		UserID:       "user-1",
		PeriodStart:  end.Add(-time.Hour),
		PeriodEnd:    end,
		OutcomeValue: 0.8,
		Deviations:   map[string]float64{"strategy-a": 0.25},
		Metadata:     map[string]string{"records": "12"},
	}
	require.NoError(t, s.PutUserOutcome(ctx, rec))

	rec.OutcomeValue = 0.9
	require.NoError(t, s.PutUserOutcome(ctx, rec))

	recs, err := s.UserOutcomes(ctx, "course")
	require.NoError(t, err)
	require.Len(t, recs, 1, "same period replays overwrite, never duplicate")
	assert.InDelta(t, 0.9, recs[0].OutcomeValue, 1e-9)
	assert.InDelta(t, 0.25, recs[0].Deviations["strategy-a"], 1e-9)
	assert.Equal(t, "12", recs[0].Metadata["records"])
}

func TestStrategyStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	missing, err := s.StrategyState(ctx, "strategy-a")
	require.NoError(t, err)
	assert.Nil(t, missing)

	st := &orchestration.StrategyLearningState{
		StrategyID:    "strategy-a",
		CurrentWeight: 1.2,
		Regression: &orchestration.RegressionResult{
			Gradient: 0.4, Intercept: 0.6, RSquared: 0.5, SampleSize: 8,
			ComputedAt: time.Unix(1700000000, 0).UTC(),
		},
		History: []orchestration.WeightChange{
			{Timestamp: time.Unix(1699990000, 0).UTC(), Weight: 1.0, Gradient: 0.4, RSquared: 0.5},
		},
	}
	require.NoError(t, s.SaveStrategyState(ctx, st))

	loaded, err := s.StrategyState(ctx, "strategy-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 1.2, loaded.CurrentWeight, 1e-9)
	require.NotNil(t, loaded.Regression)
	assert.Equal(t, 8, loaded.Regression.SampleSize)
	require.Len(t, loaded.History, 1)
	assert.InDelta(t, 1.0, loaded.History[0].Weight, 1e-9)
}
