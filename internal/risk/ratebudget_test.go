package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the budget without real sleeping.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBudget(limit int, clk *fakeClock) *RateBudget {
	b := NewRateBudget(limit, time.Minute, nil)
	b.now = clk.now
	b.sleep = func(_ context.Context, d time.Duration) error {
		clk.advance(d)
		return nil
	}
	return b
}

func TestAdmitsExactlyLimitInWindow(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBudget(195, clk)

	for i := 0; i < 195; i++ {
		require.True(t, b.TryAcquire(), "call %d should fit the budget", i)
	}
	assert.False(t, b.TryAcquire(), "call 196 must not fit")
	assert.Equal(t, 195, b.InFlight())
}

func TestBlockedCallProceedsWhenOldestAgesOut(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBudget(195, clk)

	for i := 0; i < 195; i++ {
		require.True(t, b.TryAcquire())
		clk.advance(10 * time.Millisecond)
	}
	require.False(t, b.TryAcquire())

	// Acquire blocks (via the fake sleep, which advances the clock to the
	// moment the oldest stamp leaves the window) and then succeeds.
	start := clk.t
	require.NoError(t, b.Acquire(context.Background()))
	assert.True(t, clk.t.After(start), "acquire had to wait")
	assert.LessOrEqual(t, b.InFlight(), 195)
}

func TestAcquireWithoutContentionDoesNotWait(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBudget(10, clk)

	start := clk.t
	require.NoError(t, b.Acquire(context.Background()))
	assert.Equal(t, start, clk.t)
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewRateBudget(1, time.Minute, nil)
	b.now = clk.now
	b.sleep = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}

	require.True(t, b.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, b.Acquire(ctx))
}

func TestWindowSlides(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newTestBudget(5, clk)

	for i := 0; i < 5; i++ {
		require.True(t, b.TryAcquire())
	}
	require.False(t, b.TryAcquire())

	clk.advance(61 * time.Second)
	assert.Equal(t, 0, b.InFlight())
	assert.True(t, b.TryAcquire())
}
