// Package engine runs the trading loops: tick ingest, entry search, exit
// checks, account refresh and the daily risk reset. Each loop is an
// independent goroutine on its own schedule; they share state only
// through the locked components they borrow.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"PulseTrade/internal/account"
	"PulseTrade/internal/broker"
	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/mtf"
	"PulseTrade/internal/position"
	"PulseTrade/internal/risk"
	"PulseTrade/internal/scanner"
	"PulseTrade/internal/series"
	"PulseTrade/internal/volume"
	"PulseTrade/pkg/logger"
)

// Calculator computes a timeframe signal from bar history.
type Calculator interface {
	ComputeFromBars(tf domrepo.Timeframe, bars []models.Bar) models.TimeframeSignal
}

// Config tunes the engine loops.
type Config struct {
	Symbols         []string
	Notional        float64       // target dollar size per entry
	Timeframes      []domrepo.Timeframe
	BarsLimit       int
	VolumeLookback  int
	ScanInterval    time.Duration
	ExitInterval    time.Duration
	RefreshInterval time.Duration
	DailyResetTime  string        // "HH:MM", local
	ErrorBudget     int           // consecutive connection failures before a loop halts
	RetryBackoff    time.Duration // base backoff, multiplied by the failure count
}

// DefaultConfig returns production defaults.
func DefaultConfig(symbols []string) Config {
	return Config{
		Symbols:         symbols,
		Notional:        1000,
		Timeframes:      []domrepo.Timeframe{domrepo.TF5Min, domrepo.TF15Min, domrepo.TF1Hour},
		BarsLimit:       60,
		VolumeLookback:  51,
		ScanInterval:    30 * time.Second,
		ExitInterval:    5 * time.Second,
		RefreshInterval: time.Minute,
		DailyResetTime:  "00:00",
		ErrorBudget:     10,
		RetryBackoff:    time.Second,
	}
}

// Engine coordinates the components into a running trading process.
type Engine struct {
	cfg       Config
	store     *series.Store
	scanner   *scanner.Scanner
	calc      Calculator
	validator *mtf.Validator
	volFilter *volume.Filter
	manager   *position.Manager
	riskCtl   *risk.Controller
	broker    domrepo.Broker
	stream    domrepo.MarketStream // optional
	acct      *account.Cache       // optional
	events    domrepo.EventSink
	metrics   domrepo.Metrics
	log       *logger.Logger

	mu            sync.RWMutex
	lastSignals   []models.Signal
	lastConsensus map[string]models.ConsensusResult

	now func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store     *series.Store
	Scanner   *scanner.Scanner
	Calc      Calculator
	Validator *mtf.Validator
	VolFilter *volume.Filter
	Manager   *position.Manager
	RiskCtl   *risk.Controller
	Broker    domrepo.Broker
	Stream    domrepo.MarketStream
	Account   *account.Cache
	Events    domrepo.EventSink
	Metrics   domrepo.Metrics
	Log       *logger.Logger
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:           cfg,
		store:         deps.Store,
		scanner:       deps.Scanner,
		calc:          deps.Calc,
		validator:     deps.Validator,
		volFilter:     deps.VolFilter,
		manager:       deps.Manager,
		riskCtl:       deps.RiskCtl,
		broker:        deps.Broker,
		stream:        deps.Stream,
		acct:          deps.Account,
		events:        deps.Events,
		metrics:       deps.Metrics,
		log:           deps.Log,
		lastConsensus: make(map[string]models.ConsensusResult),
		now:           time.Now,
	}
}

// Run starts all loops and blocks until ctx is cancelled and every loop
// has drained. Startup reconciliation runs first so broker-side positions
// are never orphaned.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.reconcile(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	var wg sync.WaitGroup
	loops := []struct {
		name string
		fn   func(context.Context)
	}{
		{"ingest", e.ingestLoop},
		{"entry", e.entryLoop},
		{"exit", e.exitLoop},
		{"refresh", e.refreshLoop},
		{"daily_reset", e.resetLoop},
	}
	for _, l := range loops {
		if l.name == "ingest" && e.stream == nil {
			continue
		}
		if l.name == "refresh" && e.acct == nil {
			continue
		}
		wg.Add(1)
		go func(name string, fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
			e.log.Info("loop stopped", logger.String("loop", name))
		}(l.name, l.fn)
	}
	wg.Wait()
	return nil
}

// reconcile adopts positions already live at the broker for tracked
// symbols, so a restart keeps managing them.
func (e *Engine) reconcile(ctx context.Context) error {
	live, err := e.broker.ListPositions(ctx)
	if err != nil {
		return err
	}
	tracked := make([]models.BrokerPosition, 0, len(live))
	for _, bp := range live {
		if e.isTracked(bp.Symbol) {
			tracked = append(tracked, bp)
		}
	}
	scfg := e.scanner.Config()
	n := e.manager.Adopt(tracked, scfg.TargetProfit, scfg.StopLoss)
	if n > 0 {
		e.log.Info("adopted broker positions", logger.Int("count", n))
	}
	if e.acct != nil {
		if err := e.acct.Refresh(ctx); err != nil {
			e.log.Warn("initial account refresh failed", logger.Error(err))
		}
	}
	return nil
}

func (e *Engine) isTracked(symbol string) bool {
	for _, s := range e.cfg.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// ingestLoop consumes the market stream into the series store,
// reconnecting on failure until the error budget is spent. failures
// only resets once samples actually flow, so a flapping connection
// still spends the budget.
func (e *Engine) ingestLoop(ctx context.Context) {
	failures := 0
	for {
		if err := e.connectStream(ctx); err != nil {
			failures++
			if e.haltIfSpent(ctx, "ingest", failures, err) {
				return
			}
			continue
		}

		samples, errs := e.stream.Read(ctx)
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = e.stream.Close()
				return
			case s, ok := <-samples:
				if !ok {
					break consume
				}
				failures = 0
				e.store.Record(*s)
				if e.metrics != nil {
					e.metrics.RecordLastPrice(s.Symbol, s.Price)
				}
			case err, ok := <-errs:
				if !ok {
					break consume
				}
				e.log.Warn("stream error", logger.Error(err))
				break consume
			}
		}
		if ctx.Err() != nil {
			_ = e.stream.Close()
			return
		}
		// Drop the dead connection so the next pass dials fresh.
		_ = e.stream.Close()
		failures++
		if e.haltIfSpent(ctx, "ingest", failures, fmt.Errorf("stream dropped")) {
			return
		}
	}
}

func (e *Engine) connectStream(ctx context.Context) error {
	if e.stream.IsConnected() {
		return nil
	}
	if err := e.stream.Connect(ctx); err != nil {
		return err
	}
	return e.stream.Subscribe(ctx)
}

// haltIfSpent emits a halt event and reports true once failures exceed
// the budget; otherwise it sleeps a backoff proportional to the failure
// count and reports false.
func (e *Engine) haltIfSpent(ctx context.Context, loop string, failures int, err error) bool {
	if e.metrics != nil {
		e.metrics.RecordError(string(broker.KindConnection))
	}
	if failures > e.cfg.ErrorBudget {
		e.log.Error("loop halted: error budget spent",
			logger.String("loop", loop),
			logger.Int("failures", failures),
			logger.Error(err))
		e.emit(ctx, &models.Event{
			Type:      models.EventLoopHalted,
			Component: loop,
			Reason:    err.Error(),
		})
		return true
	}
	backoff := time.Duration(failures) * e.cfg.RetryBackoff
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
	return ctx.Err() != nil
}

// entryLoop scans for candidates and opens positions that survive
// multi-timeframe validation and volume confirmation.
func (e *Engine) entryLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := e.now()
		connErr := e.runEntryCycle(ctx)
		if e.metrics != nil {
			e.metrics.RecordLoopLatency("entry", e.now().Sub(start).Seconds())
		}
		if connErr != nil {
			failures++
			if e.haltIfSpent(ctx, "entry", failures, connErr) {
				return
			}
		} else {
			failures = 0
		}
	}
}

// runEntryCycle runs one scan pass. Per-symbol errors never abort the
// cycle; only connection failures are reported up for budget accounting.
func (e *Engine) runEntryCycle(ctx context.Context) error {
	signals := e.scanner.Scan()
	e.mu.Lock()
	e.lastSignals = signals
	e.mu.Unlock()

	var connErr error
	for _, sig := range signals {
		if ctx.Err() != nil {
			return nil
		}
		if e.manager.Has(sig.Symbol) {
			continue
		}
		e.emit(ctx, &models.Event{
			Type:      models.EventSignalEmitted,
			Symbol:    sig.Symbol,
			Component: "scanner",
			Fields: map[string]interface{}{
				"action":     string(sig.Action),
				"confidence": sig.Confidence,
				"volatility": sig.Volatility,
			},
		})
		if err := e.tryEnter(ctx, sig); err != nil {
			if broker.KindOf(err) == broker.KindConnection {
				connErr = err
			}
		}
	}
	return connErr
}

// tryEnter validates one candidate end to end and opens the position if
// every gate passes.
func (e *Engine) tryEnter(ctx context.Context, sig models.Signal) error {
	res, err := e.validateTimeframes(ctx, sig.Symbol)
	if err != nil {
		if broker.KindOf(err) == broker.KindConnection {
			return err
		}
		e.log.Debug("timeframe validation skipped",
			logger.String("symbol", sig.Symbol), logger.Error(err))
		return nil
	}

	desired := 1
	if sig.Action == models.ActionSell {
		desired = -1
	}
	if res.FinalSignal != desired {
		e.emit(ctx, &models.Event{
			Type:      models.EventSignalRejected,
			Symbol:    sig.Symbol,
			Component: "engine",
			Reason:    "consensus disagrees",
			Fields: map[string]interface{}{
				"final_signal": res.FinalSignal,
				"method":       res.ResolutionMethod,
			},
		})
		return nil
	}

	window := e.store.Window(sig.Symbol, e.cfg.VolumeLookback)
	vc := e.volFilter.Confirm(window, sig)
	if !vc.Confirmed {
		e.emit(ctx, &models.Event{
			Type:      models.EventSignalRejected,
			Symbol:    sig.Symbol,
			Component: "engine",
			Reason:    "volume unconfirmed",
			Fields:    map[string]interface{}{"volume_ratio": vc.VolumeRatio},
		})
		return nil
	}

	if e.acct != nil && e.acct.BuyingPower(ctx) < e.cfg.Notional {
		e.emit(ctx, &models.Event{
			Type:      models.EventEntryRejected,
			Symbol:    sig.Symbol,
			Component: "engine",
			Reason:    "insufficient buying power",
		})
		return nil
	}

	qty := e.cfg.Notional / sig.Price
	if _, err := e.manager.Open(ctx, &sig, qty); err != nil {
		return err
	}
	return nil
}

// validateTimeframes computes oscillator signals per configured timeframe
// from broker bars and reconciles them.
func (e *Engine) validateTimeframes(ctx context.Context, symbol string) (models.ConsensusResult, error) {
	tfSignals := make(map[domrepo.Timeframe]models.TimeframeSignal, len(e.cfg.Timeframes))
	for _, tf := range e.cfg.Timeframes {
		bars, err := e.broker.GetRecentBars(ctx, symbol, tf, e.cfg.BarsLimit)
		if err != nil {
			return models.ConsensusResult{}, err
		}
		tfSignals[tf] = e.calc.ComputeFromBars(tf, bars)
	}

	res := e.validator.Validate(symbol, tfSignals)
	if e.metrics != nil {
		e.metrics.RecordConsensus(res.ResolutionMethod)
	}
	e.mu.Lock()
	e.lastConsensus[symbol] = res
	e.mu.Unlock()

	e.emit(ctx, &models.Event{
		Type:      models.EventConsensus,
		Symbol:    symbol,
		Component: "mtf_validator",
		Reason:    res.ResolutionMethod,
		Fields: map[string]interface{}{
			"final_signal":   res.FinalSignal,
			"confidence":     res.Confidence,
			"aligned":        res.Aligned,
			"weighted_score": res.WeightedScore,
		},
	})
	return res, nil
}

// exitLoop evaluates exit conditions against the latest observed prices.
func (e *Engine) exitLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ExitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		start := e.now()
		e.manager.EvaluateExits(ctx, e.quote)
		if e.metrics != nil {
			e.metrics.RecordLoopLatency("exit", e.now().Sub(start).Seconds())
		}
	}
}

// quote supplies the exit check with last price and current volatility
// from the series store.
func (e *Engine) quote(symbol string) (position.Quote, bool) {
	price, ok := e.store.LastPrice(symbol)
	if !ok {
		return position.Quote{}, false
	}
	scfg := e.scanner.Config()
	window := e.store.Window(symbol, scfg.VolatilityWindow+1)
	prices := make([]float64, len(window))
	for i, s := range window {
		prices[i] = s.Price
	}
	vol := scanner.Volatility(prices, scfg.PeriodsPerYear)
	return position.Quote{Price: price, Volatility: vol}, true
}

// refreshLoop refreshes the account snapshot cache.
func (e *Engine) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := e.acct.Refresh(ctx); err != nil {
			e.log.Warn("account refresh failed", logger.Error(err))
		}
	}
}

// resetLoop fires the explicit daily risk reset at the configured
// boundary.
func (e *Engine) resetLoop(ctx context.Context) {
	for {
		wait := e.untilNextReset()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		e.riskCtl.ResetDaily()
		e.emit(ctx, &models.Event{
			Type:      models.EventDailyReset,
			Component: "risk_controller",
		})
		e.log.Info("daily risk reset")
	}
}

// untilNextReset computes the wait until the next daily boundary.
func (e *Engine) untilNextReset() time.Duration {
	now := e.now()
	hh, mm := parseResetTime(e.cfg.DailyResetTime)
	next := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func parseResetTime(s string) (hh, mm int) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) == 2 {
		fmt.Sscanf(parts[0], "%d", &hh)
		fmt.Sscanf(parts[1], "%d", &mm)
	}
	if hh < 0 || hh > 23 {
		hh = 0
	}
	if mm < 0 || mm > 59 {
		mm = 0
	}
	return hh, mm
}

// Signals returns the most recent scan results.
func (e *Engine) Signals() []models.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Signal, len(e.lastSignals))
	copy(out, e.lastSignals)
	return out
}

// Consensus returns the most recent consensus result per symbol.
func (e *Engine) Consensus() map[string]models.ConsensusResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.ConsensusResult, len(e.lastConsensus))
	for k, v := range e.lastConsensus {
		out[k] = v
	}
	return out
}

// Positions returns the live position set.
func (e *Engine) Positions() []models.Position { return e.manager.Live() }

// Stats returns session outcomes.
func (e *Engine) Stats() models.SessionStats { return e.manager.Stats() }

// RiskState returns the current risk snapshot.
func (e *Engine) RiskState() models.RiskState { return e.riskCtl.Snapshot() }

// Flatten force-closes the open position on symbol.
func (e *Engine) Flatten(ctx context.Context, symbol string) error {
	price := 0.0
	if q, ok := e.quote(symbol); ok {
		price = q.Price
	}
	return e.manager.ForceExit(ctx, symbol, price)
}

func (e *Engine) emit(ctx context.Context, ev *models.Event) {
	if e.events == nil {
		return
	}
	ev.Timestamp = e.now()
	e.events.Emit(ctx, ev)
}
