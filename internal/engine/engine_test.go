package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// fixedCalc reports the same oscillator reading for every timeframe, so
// consensus outcomes are deterministic.
type fixedCalc struct {
	signal   int
	strength float64
}

func (c fixedCalc) ComputeFromBars(tf domrepo.Timeframe, _ []models.Bar) models.TimeframeSignal {
	return models.TimeframeSignal{
		Timeframe: string(tf),
		Signal:    c.signal,
		Strength:  c.strength,
		Timestamp: time.Now(),
	}
}

type memSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *memSink) Emit(_ context.Context, ev *models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
}

func (s *memSink) Close() error { return nil }

func (s *memSink) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	engine *Engine
	store  *series.Store
	paper  *broker.Paper
	sink   *memSink
	mgr    *position.Manager
	ctl    *risk.Controller
}

func newHarness(t *testing.T, calc Calculator) *harness {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	h := &harness{
		store: series.NewStore(series.DefaultCapacity),
		paper: broker.NewPaper(1_000_000),
		sink:  &memSink{},
		ctl:   risk.NewController(risk.Config{DailyLossLimit: 1000, MaxConcurrentPositions: 5}, nil),
	}
	h.mgr = position.NewManager(position.DefaultConfig(), h.paper, h.ctl, h.sink, log)

	acct := account.NewCache(h.paper, nil, time.Minute, log)
	require.NoError(t, acct.Refresh(context.Background()))

	cfg := DefaultConfig([]string{"AAPL"})
	cfg.Notional = 1000
	h.engine = New(cfg, Deps{
		Store:     h.store,
		Scanner:   scanner.New(h.store, scanner.DefaultConfig(), nil),
		Calc:      calc,
		Validator: mtf.New(mtf.DefaultConfig()),
		VolFilter: volume.New(volume.DefaultConfig()),
		Manager:   h.mgr,
		RiskCtl:   h.ctl,
		Broker:    h.paper,
		Account:   acct,
		Events:    h.sink,
		Log:       log,
	})
	return h
}

// seedBullish loads the store with a rising series whose last sample
// carries a volume spike, so the scanner emits a buy candidate and the
// volume filter confirms it.
func seedBullish(store *series.Store, symbol string) float64 {
	base := time.Now().Add(-time.Hour)
	price := 100.0
	for i := 0; i < 60; i++ {
		if i%2 == 0 {
			price *= 1.02
		} else {
			price *= 1.001
		}
		vol := 1000.0
		if i == 59 {
			vol = 5000
		}
		store.Record(models.Sample{
			Symbol:    symbol,
			Price:     price,
			Volume:    vol,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return price
}

func TestEntryCycleOpensConfirmedPosition(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	last := seedBullish(h.store, "AAPL")
	h.paper.SetQuote("AAPL", last)

	require.NoError(t, h.engine.runEntryCycle(context.Background()))

	assert.True(t, h.mgr.Has("AAPL"))
	live := h.mgr.Live()
	require.Len(t, live, 1)
	assert.Equal(t, models.SideLong, live[0].Side)
	assert.InDelta(t, 1000.0/last, live[0].Quantity, 1e-9)

	signals := h.engine.Signals()
	require.NotEmpty(t, signals)
	assert.Equal(t, "AAPL", signals[0].Symbol)

	consensus := h.engine.Consensus()
	require.Contains(t, consensus, "AAPL")
	assert.Equal(t, 1, consensus["AAPL"].FinalSignal)
}

func TestEntryCycleRejectsOnConsensusDisagreement(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: -1, strength: 0.9})
	last := seedBullish(h.store, "AAPL")
	h.paper.SetQuote("AAPL", last)

	require.NoError(t, h.engine.runEntryCycle(context.Background()))

	assert.False(t, h.mgr.Has("AAPL"))
	assert.Contains(t, h.sink.types(), models.EventSignalRejected)
}

func TestEntryCycleSkipsHeldSymbols(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	last := seedBullish(h.store, "AAPL")
	h.paper.SetQuote("AAPL", last)

	require.NoError(t, h.engine.runEntryCycle(context.Background()))
	require.True(t, h.mgr.Has("AAPL"))
	qty := h.mgr.Live()[0].Quantity

	// a second cycle must not stack another entry on the same symbol
	require.NoError(t, h.engine.runEntryCycle(context.Background()))
	live := h.mgr.Live()
	require.Len(t, live, 1)
	assert.Equal(t, qty, live[0].Quantity)
}

func TestQuoteSuppliesPriceAndVolatility(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	last := seedBullish(h.store, "AAPL")

	q, ok := h.engine.quote("AAPL")
	require.True(t, ok)
	assert.Equal(t, last, q.Price)
	assert.Positive(t, q.Volatility)

	_, ok = h.engine.quote("UNKNOWN")
	assert.False(t, ok)
}

func TestReconcileAdoptsTrackedBrokerPositions(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	ctx := context.Background()

	// create live broker positions: one tracked, one not
	for _, sym := range []string{"AAPL", "OTHER"} {
		h.paper.SetQuote(sym, 100)
		ord, err := h.paper.SubmitOrder(ctx, models.OrderRequest{
			Symbol: sym, Side: models.OrderBuy, Quantity: 2, Type: models.OrderMarket,
		})
		require.NoError(t, err)
		_, err = h.paper.GetOrderStatus(ctx, ord.ID)
		require.NoError(t, err)
	}

	require.NoError(t, h.engine.reconcile(ctx))
	assert.True(t, h.mgr.Has("AAPL"))
	assert.False(t, h.mgr.Has("OTHER"), "untracked symbols are not adopted")
}

type readSession func(ctx context.Context, samples chan<- *models.Sample, errs chan<- error)

// fakeStream drives the ingest loop without a socket. Its connected
// flag only clears on Close, so a session error alone never makes
// IsConnected report false; the loop has to drop the connection itself
// before it can dial again.
type fakeStream struct {
	mu        sync.Mutex
	connects  int
	closes    int
	reads     int
	connected bool
	dialErr   error         // returned by every Connect when set
	sessions  []readSession // one per Read call, in order
	repeat    readSession   // used once sessions run out
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.dialErr != nil {
		return f.dialErr
	}
	f.connected = true
	return nil
}

func (f *fakeStream) Subscribe(context.Context) error { return nil }

func (f *fakeStream) Read(ctx context.Context) (<-chan *models.Sample, <-chan error) {
	samples := make(chan *models.Sample, 8)
	errs := make(chan error, 1)
	f.mu.Lock()
	sess := f.repeat
	if f.reads < len(f.sessions) {
		sess = f.sessions[f.reads]
	}
	f.reads++
	f.mu.Unlock()
	go func() {
		defer close(samples)
		defer close(errs)
		if sess == nil {
			<-ctx.Done()
			return
		}
		sess(ctx, samples, errs)
	}()
	return samples, errs
}

func (f *fakeStream) Reconnect(ctx context.Context) error {
	_ = f.Close()
	return f.Connect(ctx)
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) counts() (connects, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.closes
}

func TestIngestLoopRedialsAfterStreamDrop(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	fs := &fakeStream{sessions: []readSession{
		func(_ context.Context, samples chan<- *models.Sample, errs chan<- error) {
			samples <- &models.Sample{Symbol: "AAPL", Price: 100, Volume: 1, Timestamp: time.Now()}
			errs <- assert.AnError
		},
		func(ctx context.Context, samples chan<- *models.Sample, _ chan<- error) {
			samples <- &models.Sample{Symbol: "AAPL", Price: 101, Volume: 1, Timestamp: time.Now()}
			<-ctx.Done()
		},
	}}
	h.engine.stream = fs
	h.engine.cfg.RetryBackoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.engine.ingestLoop(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		p, ok := h.store.LastPrice("AAPL")
		return ok && p == 101
	}, time.Second, 5*time.Millisecond, "sample from the second connection must land")

	cancel()
	<-done
	connects, closes := fs.counts()
	assert.GreaterOrEqual(t, connects, 2, "a dropped stream must be re-dialed")
	assert.GreaterOrEqual(t, closes, 1, "the dead connection must be dropped before re-dialing")
}

func TestIngestLoopHaltsWhenDialKeepsFailing(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	fs := &fakeStream{dialErr: assert.AnError}
	h.engine.stream = fs
	h.engine.cfg.ErrorBudget = 2
	h.engine.cfg.RetryBackoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.engine.ingestLoop(ctx)

	require.NoError(t, ctx.Err(), "loop must halt on its own, not on the deadline")
	assert.Contains(t, h.sink.types(), models.EventLoopHalted)
	connects, _ := fs.counts()
	assert.Equal(t, 3, connects)
}

func TestIngestLoopSpendsBudgetOnFlappingStream(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	fs := &fakeStream{repeat: func(_ context.Context, _ chan<- *models.Sample, errs chan<- error) {
		errs <- assert.AnError
	}}
	h.engine.stream = fs
	h.engine.cfg.ErrorBudget = 2
	h.engine.cfg.RetryBackoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h.engine.ingestLoop(ctx)

	require.NoError(t, ctx.Err(), "loop must halt on its own, not on the deadline")
	assert.Contains(t, h.sink.types(), models.EventLoopHalted,
		"a stream that connects but never delivers must still spend the budget")
}

func TestHaltIfSpentStopsAfterBudget(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})
	h.engine.cfg.ErrorBudget = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // skip the backoff sleeps

	assert.True(t, h.engine.haltIfSpent(ctx, "entry", 1, assert.AnError),
		"cancelled context stops the loop")

	ctx2 := context.Background()
	assert.True(t, h.engine.haltIfSpent(ctx2, "entry", 3, assert.AnError))
	assert.Contains(t, h.sink.types(), models.EventLoopHalted)
}

func TestUntilNextResetIsAlwaysFuture(t *testing.T) {
	h := newHarness(t, fixedCalc{signal: 1, strength: 0.9})

	for _, spec := range []string{"00:00", "09:30", "16:00", "23:59", "garbage"} {
		h.engine.cfg.DailyResetTime = spec
		wait := h.engine.untilNextReset()
		assert.Positive(t, wait, "reset time %q", spec)
		assert.LessOrEqual(t, wait, 24*time.Hour, "reset time %q", spec)
	}
}

func TestParseResetTime(t *testing.T) {
	hh, mm := parseResetTime("16:05")
	assert.Equal(t, 16, hh)
	assert.Equal(t, 5, mm)

	hh, mm = parseResetTime("bad")
	assert.Equal(t, 0, hh)
	assert.Equal(t, 0, mm)
}
