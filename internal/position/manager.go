// Package position owns the live position set and drives each position
// through its lifecycle: NEW -> OPEN -> EXIT_REQUESTED -> CLOSED, with
// FAILED reachable from NEW and EXIT_REQUESTED. All broker interaction
// for a symbol is serialized, so an exit is never evaluated while an
// entry order for the same symbol is in flight.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PulseTrade/internal/broker"
	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/risk"
	"PulseTrade/pkg/logger"
)

// Config tunes the lifecycle manager.
type Config struct {
	MaxHold          time.Duration `yaml:"max_hold" default:"15m"`
	FillTimeout      time.Duration `yaml:"fill_timeout" default:"10s"`
	FillPollInterval time.Duration `yaml:"fill_poll_interval" default:"500ms"`
	MaxRetries       int           `yaml:"max_retries" default:"3"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" default:"250ms"`

	// Trailing stop: once unrealized gain exceeds TrailActivation, the
	// stop follows price at TrailDistance and only ever tightens.
	TrailActivation float64 `yaml:"trail_activation" default:"0.0015"`
	TrailDistance   float64 `yaml:"trail_distance" default:"0.001"`

	// Early cut: exit an underwater position once annualized volatility
	// collapses below this floor.
	VolatilityFloor float64 `yaml:"volatility_floor" default:"0.05"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxHold:          15 * time.Minute,
		FillTimeout:      10 * time.Second,
		FillPollInterval: 500 * time.Millisecond,
		MaxRetries:       3,
		RetryBackoff:     250 * time.Millisecond,
		TrailActivation:  0.0015,
		TrailDistance:    0.001,
		VolatilityFloor:  0.05,
	}
}

// Quote is the market view an exit evaluation runs against.
type Quote struct {
	Price      float64
	Volatility float64 // annualized, 0 when unknown
}

// Manager is the position lifecycle manager.
type Manager struct {
	cfg     Config
	broker  domrepo.Broker
	riskCtl *risk.Controller
	events  domrepo.EventSink
	journal domrepo.TradeJournal
	metrics domrepo.Metrics
	log     *logger.Logger

	mu        sync.Mutex
	positions map[string]*models.Position
	symLocks  map[string]*sync.Mutex
	stats     models.SessionStats

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures the manager.
type Option func(*Manager)

// WithJournal persists closed trades.
func WithJournal(j domrepo.TradeJournal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithMetrics records order and position metrics.
func WithMetrics(mt domrepo.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides wall time, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleep overrides retry/poll sleeping, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// NewManager creates a lifecycle manager.
func NewManager(cfg Config, b domrepo.Broker, riskCtl *risk.Controller, events domrepo.EventSink, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		broker:    b,
		riskCtl:   riskCtl,
		events:    events,
		log:       log,
		positions: make(map[string]*models.Position),
		symLocks:  make(map[string]*sync.Mutex),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// symLock returns the per-symbol mutex, creating it on first use. Broker
// I/O for a symbol runs under this lock, never under m.mu.
func (m *Manager) symLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.symLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.symLocks[symbol] = l
	}
	return l
}

// Open attempts to enter a position for the signal. It admits through the
// risk controller, submits the entry order, polls for fill and promotes
// the position to OPEN. All failures release the risk reservation.
func (m *Manager) Open(ctx context.Context, sig *models.Signal, qty float64) (*models.Position, error) {
	lock := m.symLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if err := m.riskCtl.TryAdmit(sig.Symbol); err != nil {
		m.emit(ctx, &models.Event{
			Type:      models.EventEntryRejected,
			Symbol:    sig.Symbol,
			Component: "position_manager",
			Reason:    err.Error(),
		})
		return nil, fmt.Errorf("admit %s: %w", sig.Symbol, err)
	}

	side := models.SideLong
	orderSide := models.OrderBuy
	if sig.Action == models.ActionSell {
		side = models.SideShort
		orderSide = models.OrderSell
	}

	pos := &models.Position{
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: qty,
		State:    models.PositionNew,
	}

	ord, err := m.submitWithRetry(ctx, "submit_order", func() (*models.Order, error) {
		return m.broker.SubmitOrder(ctx, models.OrderRequest{
			Symbol:   sig.Symbol,
			Side:     orderSide,
			Quantity: qty,
			Type:     models.OrderMarket,
		})
	})
	if err != nil {
		m.fail(ctx, pos, fmt.Errorf("entry order: %w", err))
		return nil, err
	}
	pos.OrderID = ord.ID

	filled, err := m.waitForFill(ctx, ord.ID)
	if err != nil {
		m.fail(ctx, pos, fmt.Errorf("entry fill: %w", err))
		return nil, err
	}

	pos.EntryPrice = filled.FilledPrice
	pos.EntryTime = filled.FilledAt
	if side == models.SideLong {
		pos.TargetPrice = pos.EntryPrice * (1 + sig.TargetProfit)
		pos.StopPrice = pos.EntryPrice * (1 - sig.StopLoss)
	} else {
		pos.TargetPrice = pos.EntryPrice * (1 - sig.TargetProfit)
		pos.StopPrice = pos.EntryPrice * (1 + sig.StopLoss)
	}
	pos.State = models.PositionOpen

	m.mu.Lock()
	m.positions[pos.Symbol] = pos
	open := len(m.positions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordOrder(string(orderSide), "filled")
		m.metrics.SetOpenPositions(open)
	}
	m.emit(ctx, &models.Event{
		Type:      models.EventPositionOpened,
		Symbol:    pos.Symbol,
		Component: "position_manager",
		Before:    string(models.PositionNew),
		After:     string(models.PositionOpen),
		Fields: map[string]interface{}{
			"side":         string(side),
			"entry_price":  pos.EntryPrice,
			"target_price": pos.TargetPrice,
			"stop_price":   pos.StopPrice,
			"quantity":     qty,
		},
	})
	m.log.Info("position opened",
		logger.String("symbol", pos.Symbol),
		logger.String("side", string(side)),
		logger.Any("entry_price", pos.EntryPrice))
	return m.copyPosition(pos), nil
}

// EvaluateExits runs one exit-check cycle over the live position set. The
// quote function supplies the latest price and volatility per symbol;
// symbols without a quote are skipped this cycle.
func (m *Manager) EvaluateExits(ctx context.Context, quote func(symbol string) (Quote, bool)) {
	for _, symbol := range m.Symbols() {
		q, ok := quote(symbol)
		if !ok || q.Price <= 0 {
			continue
		}
		m.evaluateOne(ctx, symbol, q)
	}
}

// evaluateOne checks a single position and drives the exit if triggered.
func (m *Manager) evaluateOne(ctx context.Context, symbol string, q Quote) {
	lock := m.symLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	pos, ok := m.positions[symbol]
	if !ok || pos.State != models.PositionOpen {
		m.mu.Unlock()
		return
	}
	m.updateTrailingStop(pos, q.Price)
	reason := m.exitReason(pos, q)
	m.mu.Unlock()

	if reason == "" {
		return
	}
	m.requestExit(ctx, pos, reason, q.Price)
}

// updateTrailingStop tightens the stop once the position carries enough
// unrealized gain. The stop is monotone: it never moves away from price.
// Caller holds m.mu.
func (m *Manager) updateTrailingStop(pos *models.Position, price float64) {
	if m.cfg.TrailDistance <= 0 {
		return
	}
	if pos.Side == models.SideLong {
		gain := price/pos.EntryPrice - 1
		if gain < m.cfg.TrailActivation {
			return
		}
		if trail := price * (1 - m.cfg.TrailDistance); trail > pos.StopPrice {
			pos.StopPrice = trail
		}
	} else {
		gain := 1 - price/pos.EntryPrice
		if gain < m.cfg.TrailActivation {
			return
		}
		if trail := price * (1 + m.cfg.TrailDistance); trail < pos.StopPrice {
			pos.StopPrice = trail
		}
	}
}

// exitReason applies exit triggers in strict priority order. Caller
// holds m.mu.
func (m *Manager) exitReason(pos *models.Position, q Quote) string {
	long := pos.Side == models.SideLong
	targetHit := (long && q.Price >= pos.TargetPrice) || (!long && q.Price <= pos.TargetPrice)
	stopHit := (long && q.Price <= pos.StopPrice) || (!long && q.Price >= pos.StopPrice)
	underwater := (long && q.Price < pos.EntryPrice) || (!long && q.Price > pos.EntryPrice)

	switch {
	case targetHit:
		return models.ExitReasonProfitTarget
	case stopHit:
		return models.ExitReasonStopLoss
	case m.now().Sub(pos.EntryTime) >= m.cfg.MaxHold:
		return models.ExitReasonMaxHold
	case underwater && q.Volatility > 0 && q.Volatility < m.cfg.VolatilityFloor:
		return models.ExitReasonVolatilityCut
	}
	return ""
}

// ForceExit closes the open position on symbol immediately, bypassing
// the exit triggers. refPrice is informational only; the realized P&L
// comes from the actual fill.
func (m *Manager) ForceExit(ctx context.Context, symbol string, refPrice float64) error {
	lock := m.symLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	pos, ok := m.positions[symbol]
	if !ok || pos.State != models.PositionOpen {
		m.mu.Unlock()
		return fmt.Errorf("no open position for %s", symbol)
	}
	m.mu.Unlock()

	m.requestExit(ctx, pos, models.ExitReasonManual, refPrice)
	return nil
}

// requestExit transitions OPEN -> EXIT_REQUESTED, submits the closing
// order and completes the lifecycle. Caller holds the symbol lock.
func (m *Manager) requestExit(ctx context.Context, pos *models.Position, reason string, refPrice float64) {
	m.mu.Lock()
	pos.State = models.PositionExitRequested
	pos.ExitReason = reason
	m.mu.Unlock()

	m.emit(ctx, &models.Event{
		Type:      models.EventExitRequested,
		Symbol:    pos.Symbol,
		Component: "position_manager",
		Reason:    reason,
		Before:    string(models.PositionOpen),
		After:     string(models.PositionExitRequested),
		Fields:    map[string]interface{}{"price": refPrice},
	})

	orderSide := models.OrderSell
	if pos.Side == models.SideShort {
		orderSide = models.OrderBuy
	}
	ord, err := m.submitWithRetry(ctx, "submit_order", func() (*models.Order, error) {
		return m.broker.SubmitOrder(ctx, models.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     orderSide,
			Quantity: pos.Quantity,
			Type:     models.OrderMarket,
		})
	})
	if err != nil {
		m.fail(ctx, pos, fmt.Errorf("exit order: %w", err))
		return
	}

	filled, err := m.waitForFill(ctx, ord.ID)
	if err != nil {
		m.fail(ctx, pos, fmt.Errorf("exit fill: %w", err))
		return
	}
	m.close(ctx, pos, filled)
}

// close finalizes a filled exit: realized P&L, risk accounting, session
// stats, journal row and the closing event.
func (m *Manager) close(ctx context.Context, pos *models.Position, exitOrder *models.Order) {
	m.mu.Lock()
	pos.ExitPrice = exitOrder.FilledPrice
	pos.ExitTime = exitOrder.FilledAt
	if pos.Side == models.SideLong {
		pos.RealizedPnL = (pos.ExitPrice - pos.EntryPrice) * pos.Quantity
	} else {
		pos.RealizedPnL = (pos.EntryPrice - pos.ExitPrice) * pos.Quantity
	}
	pos.State = models.PositionClosed
	m.recordOutcome(pos.RealizedPnL)
	delete(m.positions, pos.Symbol)
	open := len(m.positions)
	m.mu.Unlock()

	m.riskCtl.RecordPnL(pos.RealizedPnL)
	m.riskCtl.Release(pos.Symbol)

	if m.metrics != nil {
		m.metrics.SetOpenPositions(open)
	}
	if m.journal != nil {
		rec := &models.TradeRecord{
			Symbol:     pos.Symbol,
			Side:       pos.Side,
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
			EntryTime:  pos.EntryTime,
			ExitPrice:  pos.ExitPrice,
			ExitTime:   pos.ExitTime,
			ExitReason: pos.ExitReason,
			PnL:        pos.RealizedPnL,
		}
		if err := m.journal.Append(ctx, rec); err != nil {
			m.log.Error("journal append failed",
				logger.String("symbol", pos.Symbol), logger.Error(err))
		}
	}
	m.emit(ctx, &models.Event{
		Type:      models.EventPositionClosed,
		Symbol:    pos.Symbol,
		Component: "position_manager",
		Reason:    pos.ExitReason,
		Before:    string(models.PositionExitRequested),
		After:     string(models.PositionClosed),
		Fields: map[string]interface{}{
			"exit_price": pos.ExitPrice,
			"pnl":        pos.RealizedPnL,
		},
	})
	m.log.Info("position closed",
		logger.String("symbol", pos.Symbol),
		logger.String("reason", pos.ExitReason),
		logger.Any("pnl", pos.RealizedPnL))
}

// fail moves a position to FAILED, removes it from the live set and
// releases its risk reservation. The position never lingers in a retry
// storm: the bounded retries happened before we got here.
func (m *Manager) fail(ctx context.Context, pos *models.Position, err error) {
	m.mu.Lock()
	before := pos.State
	pos.State = models.PositionFailed
	delete(m.positions, pos.Symbol)
	open := len(m.positions)
	m.mu.Unlock()

	m.riskCtl.Release(pos.Symbol)
	if m.metrics != nil {
		m.metrics.SetOpenPositions(open)
		m.metrics.RecordError(string(broker.KindOf(err)))
	}
	m.emit(ctx, &models.Event{
		Type:      models.EventPositionFailed,
		Symbol:    pos.Symbol,
		Component: "position_manager",
		Reason:    err.Error(),
		Before:    string(before),
		After:     string(models.PositionFailed),
	})
	m.log.Error("position failed",
		logger.String("symbol", pos.Symbol),
		logger.String("state", string(before)),
		logger.Error(err))
}

// waitForFill polls order status until it fills or the wait window
// expires. On timeout the order is cancelled before reporting failure,
// so no live order is left orphaned at the broker.
func (m *Manager) waitForFill(ctx context.Context, orderID string) (*models.Order, error) {
	deadline := m.now().Add(m.cfg.FillTimeout)
	for {
		ord, err := m.broker.GetOrderStatus(ctx, orderID)
		if err == nil {
			switch ord.Status {
			case models.OrderStatusFilled:
				return ord, nil
			case models.OrderStatusCanceled, models.OrderStatusRejected:
				return nil, broker.NewError(broker.KindInvalidRequest, "wait_fill",
					fmt.Errorf("order %s ended %s", orderID, ord.Status))
			}
		} else if !broker.Retryable(err) {
			return nil, err
		}
		if !m.now().Before(deadline) {
			if cerr := m.broker.CancelOrder(ctx, orderID); cerr != nil {
				m.log.Warn("cancel after timeout failed",
					logger.String("order_id", orderID), logger.Error(cerr))
			}
			return nil, broker.NewError(broker.KindOrderTimeout, "wait_fill",
				fmt.Errorf("order %s not filled within %s", orderID, m.cfg.FillTimeout))
		}
		if err := m.sleep(ctx, m.cfg.FillPollInterval); err != nil {
			return nil, err
		}
	}
}

// submitWithRetry retries retryable broker failures with exponential
// backoff, bounded by MaxRetries. Non-retryable categories fail fast.
func (m *Manager) submitWithRetry(ctx context.Context, op string, call func() (*models.Order, error)) (*models.Order, error) {
	backoff := m.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		ord, err := call()
		if err == nil {
			return ord, nil
		}
		lastErr = err
		if m.metrics != nil {
			m.metrics.RecordError(string(broker.KindOf(err)))
		}
		if !broker.Retryable(err) {
			return nil, err
		}
		m.log.Warn("broker call failed, retrying",
			logger.String("op", op),
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}
	return nil, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// Adopt registers positions already live at the broker (startup
// reconciliation) so they are tracked and exit-managed like local ones.
func (m *Manager) Adopt(brokerPositions []models.BrokerPosition, targetProfit, stopLoss float64) int {
	adopted := 0
	for _, bp := range brokerPositions {
		if bp.Quantity == 0 {
			continue
		}
		if err := m.riskCtl.TryAdmit(bp.Symbol); err != nil {
			continue
		}
		side := models.SideLong
		qty := bp.Quantity
		target := bp.EntryPrice * (1 + targetProfit)
		stop := bp.EntryPrice * (1 - stopLoss)
		if bp.Quantity < 0 {
			side = models.SideShort
			qty = -bp.Quantity
			target = bp.EntryPrice * (1 - targetProfit)
			stop = bp.EntryPrice * (1 + stopLoss)
		}
		m.mu.Lock()
		m.positions[bp.Symbol] = &models.Position{
			Symbol:      bp.Symbol,
			Side:        side,
			Quantity:    qty,
			EntryPrice:  bp.EntryPrice,
			EntryTime:   m.now(),
			TargetPrice: target,
			StopPrice:   stop,
			State:       models.PositionOpen,
		}
		m.mu.Unlock()
		adopted++
	}
	m.mu.Lock()
	open := len(m.positions)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetOpenPositions(open)
	}
	return adopted
}

// Has reports whether a live position exists for symbol.
func (m *Manager) Has(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.positions[symbol]
	return ok
}

// Symbols returns the symbols with a live position.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.positions))
	for s := range m.positions {
		out = append(out, s)
	}
	return out
}

// Live returns a snapshot of the live position set.
func (m *Manager) Live() []models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Stats returns a snapshot of session outcomes.
func (m *Manager) Stats() models.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// recordOutcome folds a realized P&L into session stats. Caller holds m.mu.
func (m *Manager) recordOutcome(pnl float64) {
	m.stats.Trades++
	m.stats.NetPnL += pnl
	if pnl >= 0 {
		m.stats.Wins++
		m.stats.GrossProfit += pnl
		if m.stats.CurrentStreak < 0 {
			m.stats.CurrentStreak = 0
		}
		m.stats.CurrentStreak++
		if m.stats.CurrentStreak > m.stats.WinStreak {
			m.stats.WinStreak = m.stats.CurrentStreak
		}
	} else {
		m.stats.Losses++
		m.stats.GrossLoss += -pnl
		if m.stats.CurrentStreak > 0 {
			m.stats.CurrentStreak = 0
		}
		m.stats.CurrentStreak--
		if -m.stats.CurrentStreak > m.stats.LossStreak {
			m.stats.LossStreak = -m.stats.CurrentStreak
		}
	}
}

func (m *Manager) emit(ctx context.Context, ev *models.Event) {
	if m.events == nil {
		return
	}
	ev.Timestamp = m.now()
	m.events.Emit(ctx, ev)
}

func (m *Manager) copyPosition(pos *models.Position) *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pos
	return &cp
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
