package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fisschl/auth/internal/cache"
	"github.com/fisschl/auth/internal/domain"
)

const (
	testRetention = 60 * 24 * time.Hour
	testInterval  = 60 * time.Second
	testBatchSize = 1024
)

func newSweeperFixture(t *testing.T, clock *fakeClock) (*Sweeper, *mockTokenRepository) {
	t.Helper()

	tokenRepo := new(mockTokenRepository)

	userCache, err := cache.New[string, domain.UserView](1024, 24*time.Hour)
	require.NoError(t, err)
	tokenCache, err := cache.New[string, string](6144, 24*time.Hour)
	require.NoError(t, err)
	sessions := NewSessions(new(mockUserRepository), tokenRepo, userCache, tokenCache, testLogger())

	sweeper := NewSweeper(tokenRepo, sessions, testRetention, testInterval, testBatchSize, testLogger())
	if clock != nil {
		sweeper.now = clock.Now
	}
	return sweeper, tokenRepo
}

func TestSweeper_Acquire_Throttles(t *testing.T) {
	clock := newFakeClock()
	sweeper, _ := newSweeperFixture(t, clock)

	assert.True(t, sweeper.acquire(), "first trigger claims the window")
	assert.False(t, sweeper.acquire(), "second trigger inside the window is rejected")

	clock.Advance(30 * time.Second)
	assert.False(t, sweeper.acquire(), "still inside the window")

	clock.Advance(31 * time.Second)
	assert.True(t, sweeper.acquire(), "window reopens after the interval")
}

func TestSweeper_Sweep_DeletesBatchBeforeCutoff(t *testing.T) {
	clock := newFakeClock()
	sweeper, tokenRepo := newSweeperFixture(t, clock)

	wantCutoff := clock.Now().UTC().Add(-testRetention)
	expired := []string{"tok-old-1", "tok-old-2", "tok-old-3"}

	tokenRepo.On("ListOlderThan", mock.Anything, wantCutoff, testBatchSize).
		Return(expired, nil).Once()
	tokenRepo.On("DeleteBatch", mock.Anything, expired).
		Return(int64(3), nil).Once()

	deleted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	tokenRepo.AssertExpectations(t)
}

func TestSweeper_Sweep_NothingExpired(t *testing.T) {
	sweeper, tokenRepo := newSweeperFixture(t, nil)

	tokenRepo.On("ListOlderThan", mock.Anything, mock.Anything, testBatchSize).
		Return([]string{}, nil).Once()

	deleted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	tokenRepo.AssertNotCalled(t, "DeleteBatch")
}

func TestSweeper_Sweep_ListError(t *testing.T) {
	sweeper, tokenRepo := newSweeperFixture(t, nil)

	tokenRepo.On("ListOlderThan", mock.Anything, mock.Anything, testBatchSize).
		Return(nil, errors.New("connection reset")).Once()

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
	tokenRepo.AssertNotCalled(t, "DeleteBatch")
}

func TestSweeper_Trigger_RunsSweepInBackground(t *testing.T) {
	sweeper, tokenRepo := newSweeperFixture(t, nil)

	done := make(chan struct{})
	tokenRepo.On("ListOlderThan", mock.Anything, mock.Anything, testBatchSize).
		Run(func(mock.Arguments) { close(done) }).
		Return([]string{}, nil).Once()

	sweeper.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run after trigger")
	}
}

func TestSweeper_Trigger_SecondCallInsideWindowIsNoop(t *testing.T) {
	sweeper, tokenRepo := newSweeperFixture(t, nil)

	done := make(chan struct{})
	tokenRepo.On("ListOlderThan", mock.Anything, mock.Anything, testBatchSize).
		Run(func(mock.Arguments) { close(done) }).
		Return([]string{}, nil).Once()

	sweeper.Trigger()
	sweeper.Trigger()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run after trigger")
	}

	// Only the first trigger may reach the store.
	tokenRepo.AssertNumberOfCalls(t, "ListOlderThan", 1)
}
