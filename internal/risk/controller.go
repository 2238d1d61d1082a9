// Package risk gates position entries against daily loss and concurrency
// limits and meters broker API calls through a sliding-window budget.
package risk

import (
	"errors"
	"sync"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

// Admission rejections.
var (
	ErrDailyLossLimit = errors.New("daily loss limit reached")
	ErrMaxPositions   = errors.New("max concurrent positions reached")
	ErrSymbolHeld     = errors.New("position already held for symbol")
)

// Config holds risk limits.
type Config struct {
	DailyLossLimit         float64
	MaxConcurrentPositions int
}

// Controller owns the process-wide risk state. Admission is a single
// atomic check-and-reserve so concurrent entry attempts cannot both pass.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	dailyLoss float64
	reserved  map[string]struct{}
	metrics   domrepo.Metrics
}

// NewController creates a controller.
func NewController(cfg Config, metrics domrepo.Metrics) *Controller {
	return &Controller{
		cfg:      cfg,
		reserved: make(map[string]struct{}),
		metrics:  metrics,
	}
}

// TryAdmit atomically checks all entry limits and reserves a slot for
// symbol. The caller must Release the slot if the entry does not reach a
// live position, or on position close.
func (c *Controller) TryAdmit(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dailyLoss >= c.cfg.DailyLossLimit {
		return ErrDailyLossLimit
	}
	if len(c.reserved) >= c.cfg.MaxConcurrentPositions {
		return ErrMaxPositions
	}
	if _, held := c.reserved[symbol]; held {
		return ErrSymbolHeld
	}
	c.reserved[symbol] = struct{}{}
	if c.metrics != nil {
		c.metrics.SetOpenPositions(len(c.reserved))
	}
	return nil
}

// Release frees the slot reserved for symbol.
func (c *Controller) Release(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reserved, symbol)
	if c.metrics != nil {
		c.metrics.SetOpenPositions(len(c.reserved))
	}
}

// RecordPnL accounts a realized result. Losses accumulate against the
// daily limit; profits never reduce it.
func (c *Controller) RecordPnL(pnl float64) {
	if pnl >= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyLoss += -pnl
	if c.metrics != nil {
		c.metrics.SetDailyLoss(c.dailyLoss)
	}
}

// ResetDaily zeroes the loss accumulator at the daily boundary. Explicit,
// never a silent rollover.
func (c *Controller) ResetDaily() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyLoss = 0
	if c.metrics != nil {
		c.metrics.SetDailyLoss(0)
	}
}

// Snapshot returns the current risk state for observability.
func (c *Controller) Snapshot() models.RiskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.RiskState{
		CurrentDailyLoss:       c.dailyLoss,
		DailyLossLimit:         c.cfg.DailyLossLimit,
		OpenPositions:          len(c.reserved),
		MaxConcurrentPositions: c.cfg.MaxConcurrentPositions,
		TradingHalted:          c.dailyLoss >= c.cfg.DailyLossLimit,
	}
}
