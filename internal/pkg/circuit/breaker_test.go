package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerLifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	var moves []State
	b := New(Config{
		Name:      "test",
		Threshold: 2,
		Cooldown:  time.Minute,
		Now:       func() time.Time { return now },
		OnTransition: func(_ string, _, to State) {
			mu.Lock()
			moves = append(moves, to)
			mu.Unlock()
		},
	})

	assert.True(t, b.Allow())
	b.Failure()
	assert.Equal(t, Closed, b.State())
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	now = now.Add(30 * time.Second)
	assert.False(t, b.Allow(), "still cooling down")

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
	b.Success()
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Counts().Failures)

	t.Run("half-open failure reopens", func(t *testing.T) {
		b.Failure()
		b.Failure()
		now = now.Add(2 * time.Minute)
		assert.True(t, b.Allow())
		b.Failure()
		assert.Equal(t, Open, b.State())
		assert.Equal(t, 3, b.Counts().Trips)
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(moves) == 6
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.ElementsMatch(t, []State{Open, HalfOpen, Closed, Open, HalfOpen, Open}, moves)
	mu.Unlock()
}

func TestBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(Config{Name: "x", Threshold: 3, Cooldown: time.Hour})
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	assert.Equal(t, Closed, b.State())
	b.Failure()
	assert.Equal(t, Open, b.State())
}

func TestBreakerZeroThresholdTripsOnFirstFailure(t *testing.T) {
	b := New(Config{Name: "x"})
	b.Failure()
	assert.Equal(t, Open, b.State())
	assert.Equal(t, "open", b.State().String())
}
