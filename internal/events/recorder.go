package events

import (
	"context"
	"sync"

	"PulseTrade/internal/domain/models"
)

// Recorder keeps the most recent events in a fixed ring so the status
// API can show what the engine did lately without any external store.
type Recorder struct {
	mu     sync.RWMutex
	buf    []models.Event
	next   int
	filled bool
}

// NewRecorder creates a recorder holding the last capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{buf: make([]models.Event, capacity)}
}

// Emit stores the event, evicting the oldest once full.
func (r *Recorder) Emit(_ context.Context, ev *models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = *ev
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.filled = true
	}
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Recent returns up to n newest events, newest first. Pass a filter to
// restrict to certain event types; nil means all.
func (r *Recorder) Recent(n int, filter map[models.EventType]bool) []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.filled {
		size = len(r.buf)
	}
	out := make([]models.Event, 0, n)
	for i := 1; i <= size && len(out) < n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		ev := r.buf[idx]
		if filter != nil && !filter[ev.Type] {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// failureTypes lists the event types the recent-errors view shows.
var failureTypes = map[models.EventType]bool{
	models.EventPositionFailed: true,
	models.EventEntryRejected:  true,
	models.EventLoopHalted:     true,
}

// RecentFailures returns up to n newest failure events, newest first.
func (r *Recorder) RecentFailures(n int) []models.Event {
	return r.Recent(n, failureTypes)
}
