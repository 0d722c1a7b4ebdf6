package elo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1000, 1000), 1e-9)
	assert.Greater(t, Expected(1200, 1000), 0.7)
	assert.Less(t, Expected(1000, 1200), 0.3)
	assert.InDelta(t, 1.0, Expected(1200, 1000)+Expected(1000, 1200), 1e-9)
}

func TestKFactor(t *testing.T) {
	assert.Equal(t, 32.0, KFactor(0))
	assert.Equal(t, 32.0, KFactor(1))
	assert.Equal(t, 16.0, KFactor(2))
	assert.Equal(t, 11.0, KFactor(3)) // ceil(32/3)
	assert.Equal(t, 1.0, KFactor(32))
	assert.Equal(t, 1.0, KFactor(100))
}

func TestUpdate_ZeroSum(t *testing.T) {
	newUser, newCard := Update(1000, 1100, 1.0, 32)

	assert.Greater(t, newUser, 1000.0)
	assert.Less(t, newCard, 1100.0)
	assert.InDelta(t, 2100.0, newUser+newCard, 1e-9)
}

func TestUpdate_EvenMatchHalfScoreIsNeutral(t *testing.T) {
	newUser, newCard := Update(1000, 1000, 0.5, 32)
	assert.InDelta(t, 1000.0, newUser, 1e-9)
	assert.InDelta(t, 1000.0, newCard, 1e-9)
}

type mockCourseStore struct {
	mu      sync.Mutex
	cards   map[string]CardEloData
	updated []CardEloData
	getErr  error
	putErr  error
}

func (m *mockCourseStore) GetCardEloData(_ context.Context, _ string, ids []string) (map[string]CardEloData, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]CardEloData)
	for _, id := range ids {
		if c, ok := m.cards[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (m *mockCourseStore) UpdateCardElo(_ context.Context, _ string, data CardEloData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.updated = append(m.updated, data)
	return nil
}

type mockUserStore struct {
	mu      sync.Mutex
	updated []CourseRegistration
	err     error
}

func (m *mockUserStore) UpdateUserElo(_ context.Context, reg CourseRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updated = append(m.updated, reg)
	return nil
}

func TestUpdateUserAndCardElo_MutatesRegistrationInPlace(t *testing.T) {
	course := &mockCourseStore{cards: map[string]CardEloData{
		"card-1": {CardID: "card-1", Global: 1000, Count: 0},
	}}
	user := &mockUserStore{}
	svc := NewService(course, user, nil)

	reg := &CourseRegistration{CourseID: "course-1", UserID: "u1", Elo: 1000}
	effects := svc.UpdateUserAndCardElo(context.Background(), 1.0, "course-1", "card-1", reg)

	assert.False(t, effects.Failed())
	assert.Greater(t, reg.Elo, 1000.0, "registration doc mutated in place")

	require.Len(t, course.updated, 1)
	assert.Less(t, course.updated[0].Global, 1000.0)
	assert.Equal(t, 1, course.updated[0].Count)
	require.Len(t, user.updated, 1)
	assert.Equal(t, reg.Elo, user.updated[0].Elo)
}

func TestUpdateUserAndCardElo_RepeatedInteractionsDampened(t *testing.T) {
	course := &mockCourseStore{cards: map[string]CardEloData{
		"seasoned": {CardID: "seasoned", Global: 1000, Count: 31},
		"fresh":    {CardID: "fresh", Global: 1000, Count: 0},
	}}
	user := &mockUserStore{}
	svc := NewService(course, user, nil)

	regA := &CourseRegistration{CourseID: "c", UserID: "u", Elo: 1000}
	svc.UpdateUserAndCardElo(context.Background(), 1.0, "c", "seasoned", regA)
	dampened := regA.Elo - 1000

	regB := &CourseRegistration{CourseID: "c", UserID: "u", Elo: 1000}
	svc.UpdateUserAndCardElo(context.Background(), 1.0, "c", "fresh", regB)
	full := regB.Elo - 1000

	assert.Greater(t, full, dampened)
}

func TestUpdateUserAndCardElo_WriteFailuresIndependent(t *testing.T) {
	course := &mockCourseStore{
		cards:  map[string]CardEloData{"c1": {CardID: "c1", Global: 1000}},
		putErr: errors.New("course db down"),
	}
	user := &mockUserStore{}
	svc := NewService(course, user, nil)

	reg := &CourseRegistration{CourseID: "course", UserID: "u", Elo: 1000}
	effects := svc.UpdateUserAndCardElo(context.Background(), 1.0, "course", "c1", reg)

	assert.True(t, effects.Failed())
	assert.Error(t, effects.CardErr)
	assert.NoError(t, effects.UserErr)
	assert.Len(t, user.updated, 1, "user write proceeds despite card write failure")
}

func TestUpdateUserAndCardElo_UnknownCardUsesDefault(t *testing.T) {
	course := &mockCourseStore{cards: map[string]CardEloData{}}
	user := &mockUserStore{}
	svc := NewService(course, user, nil)

	reg := &CourseRegistration{CourseID: "course", UserID: "u", Elo: 1200}
	effects := svc.UpdateUserAndCardElo(context.Background(), 0.0, "course", "mystery", reg)

	assert.False(t, effects.Failed())
	assert.Less(t, reg.Elo, 1200.0, "losing to a default-rated card costs rating")
	require.Len(t, course.updated, 1)
	assert.Greater(t, course.updated[0].Global, float64(DefaultRating))
}

func TestUpdateTaggedElo_AppliesPerTagAndGlobal(t *testing.T) {
	course := &mockCourseStore{cards: map[string]CardEloData{
		"c1": {CardID: "c1", Global: 1000},
	}}
	user := &mockUserStore{}
	svc := NewService(course, user, nil)

	reg := &CourseRegistration{CourseID: "course", UserID: "u", Elo: 1000}
	effects := svc.UpdateTaggedElo(context.Background(), map[string]float64{
		"fractions": 1.0,
		"decimals":  0.0,
	}, "course", "c1", reg)

	require.False(t, effects.Failed())
	assert.Greater(t, reg.Tags["fractions"], 1000.0)
	assert.Less(t, reg.Tags["decimals"], 1000.0)
	assert.Contains(t, reg.Tags, GlobalTag)

	require.Len(t, course.updated, 1)
	card := course.updated[0]
	assert.Less(t, card.Tags["fractions"], 1000.0)
	assert.Greater(t, card.Tags["decimals"], 1000.0)
	// Mean tag score of 0.5 against an even match leaves the global rating
	// unchanged.
	assert.InDelta(t, 1000.0, card.Global, 1e-9)
}
