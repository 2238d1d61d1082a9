// Package series holds the bounded per-symbol rolling sample buffers the
// scanner and position manager read every cycle.
package series

import (
	"sync"

	"PulseTrade/internal/domain/models"
)

// DefaultCapacity bounds each per-symbol buffer.
const DefaultCapacity = 1000

// Store keeps one fixed-capacity ring of samples per symbol.
// Append and eviction are O(1); reads copy out in chronological order.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

type ring struct {
	buf   []models.Sample
	head  int // index of oldest sample
	count int
}

// NewStore creates a store with the given per-symbol capacity.
// Capacity <= 0 falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Record appends a sample for its symbol, evicting the oldest at capacity.
func (s *Store) Record(sample models.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[sample.Symbol]
	if !ok {
		r = &ring{buf: make([]models.Sample, s.capacity)}
		s.rings[sample.Symbol] = r
	}
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = sample
		r.count++
		return
	}
	// full: overwrite oldest
	r.buf[r.head] = sample
	r.head = (r.head + 1) % len(r.buf)
}

// Window returns the last n samples for symbol in chronological order,
// or fewer if the buffer holds fewer.
func (s *Store) Window(symbol string, n int) []models.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[symbol]
	if !ok || n <= 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]models.Sample, n)
	start := r.head + r.count - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of stored samples for symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[symbol]
	if !ok {
		return 0
	}
	return r.count
}

// LastPrice returns the most recent price for symbol, false if none.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[symbol]
	if !ok || r.count == 0 {
		return 0, false
	}
	last := r.buf[(r.head+r.count-1)%len(r.buf)]
	return last.Price, true
}

// Symbols returns all symbols with at least one sample.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.rings))
	for sym, r := range s.rings {
		if r.count > 0 {
			out = append(out, sym)
		}
	}
	return out
}
