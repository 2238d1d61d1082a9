package risk

import (
	"context"
	"sync"
	"time"

	domrepo "PulseTrade/internal/domain/repository"
)

// RateBudget enforces a hard ceiling of calls per sliding window, leaving
// headroom under the broker's published limit. Acquire blocks until a
// slot frees; calls are never dropped silently.
type RateBudget struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	stamps  []time.Time
	metrics domrepo.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateBudget creates a budget of limit calls per window.
func NewRateBudget(limit int, window time.Duration, metrics domrepo.Metrics) *RateBudget {
	if limit <= 0 {
		limit = 195
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateBudget{
		limit:   limit,
		window:  window,
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// TryAcquire consumes a slot if one is free right now.
func (b *RateBudget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.prune(now)
	if len(b.stamps) >= b.limit {
		return false
	}
	b.stamps = append(b.stamps, now)
	return true
}

// Acquire blocks until a slot is available or ctx is done.
func (b *RateBudget) Acquire(ctx context.Context) error {
	waited := time.Duration(0)
	for {
		b.mu.Lock()
		now := b.now()
		b.prune(now)
		if len(b.stamps) < b.limit {
			b.stamps = append(b.stamps, now)
			b.mu.Unlock()
			if waited > 0 && b.metrics != nil {
				b.metrics.RecordRateWait(waited.Seconds())
			}
			return nil
		}
		// wait until the oldest stamp ages out of the window
		wait := b.stamps[0].Add(b.window).Sub(now)
		b.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// InFlight returns the number of stamps currently inside the window.
func (b *RateBudget) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return len(b.stamps)
}

// prune drops stamps older than the window. Caller holds the lock.
func (b *RateBudget) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
