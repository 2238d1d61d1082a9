package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

// Paper is an in-process Broker that fills market orders against the
// latest quoted price. It backs local runs without a gateway and the
// lifecycle tests, which inject failures per operation.
type Paper struct {
	mu        sync.Mutex
	quotes    map[string]float64
	orders    map[string]*models.Order
	positions map[string]*models.BrokerPosition
	cash      float64

	fillDelay time.Duration     // orders fill only after this much wall time
	failures  map[string]*Error // op -> injected failure
	failCount map[string]int    // remaining injections per op
	rng       *rand.Rand
	now       func() time.Time
}

// NewPaper creates a paper broker with the given starting cash.
func NewPaper(cash float64) *Paper {
	return &Paper{
		quotes:    make(map[string]float64),
		orders:    make(map[string]*models.Order),
		positions: make(map[string]*models.BrokerPosition),
		cash:      cash,
		failures:  make(map[string]*Error),
		failCount: make(map[string]int),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
	}
}

// SetQuote sets the current fill price for a symbol.
func (p *Paper) SetQuote(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[symbol] = price
}

// SetFillDelay delays fills so order-status polling is exercised.
func (p *Paper) SetFillDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fillDelay = d
}

// FailNext injects n categorized failures for an operation
// ("submit_order", "get_order_status", "cancel_order", ...).
func (p *Paper) FailNext(op string, kind ErrorKind, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = NewError(kind, op, fmt.Errorf("injected"))
	p.failCount[op] = n
}

// takeFailure consumes one injected failure if armed. Caller holds the lock.
func (p *Paper) takeFailure(op string) *Error {
	if p.failCount[op] <= 0 {
		return nil
	}
	p.failCount[op]--
	return p.failures[op]
}

// SubmitOrder accepts a market order; it fills after the configured delay.
func (p *Paper) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("submit_order"); err != nil {
		return nil, err
	}
	price, ok := p.quotes[req.Symbol]
	if !ok {
		return nil, NewError(KindInvalidRequest, "submit_order",
			fmt.Errorf("no quote for %s", req.Symbol))
	}
	if req.Quantity <= 0 {
		return nil, NewError(KindInvalidRequest, "submit_order",
			fmt.Errorf("quantity %f", req.Quantity))
	}
	if req.Side == models.OrderBuy && req.Quantity*price > p.cash {
		return nil, NewError(KindInsufficientFunds, "submit_order",
			fmt.Errorf("cost %.2f exceeds cash %.2f", req.Quantity*price, p.cash))
	}

	ord := &models.Order{
		ID:          uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Type:        req.Type,
		Status:      models.OrderStatusNew,
		SubmittedAt: p.now(),
	}
	p.orders[ord.ID] = ord
	return p.copyOrder(ord), nil
}

// GetOrderStatus reports order state, filling matured orders first.
func (p *Paper) GetOrderStatus(_ context.Context, orderID string) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("get_order_status"); err != nil {
		return nil, err
	}
	ord, ok := p.orders[orderID]
	if !ok {
		return nil, NewError(KindInvalidRequest, "get_order_status", ErrUnknownOrder)
	}
	if ord.Status == models.OrderStatusNew && p.now().Sub(ord.SubmittedAt) >= p.fillDelay {
		p.fill(ord)
	}
	return p.copyOrder(ord), nil
}

// CancelOrder cancels an unfilled order.
func (p *Paper) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("cancel_order"); err != nil {
		return err
	}
	ord, ok := p.orders[orderID]
	if !ok {
		return NewError(KindInvalidRequest, "cancel_order", ErrUnknownOrder)
	}
	if ord.Status == models.OrderStatusNew {
		ord.Status = models.OrderStatusCanceled
	}
	return nil
}

// GetRecentBars synthesizes bars as a seeded walk around the quote so the
// timeframe calculators have history to chew on.
func (p *Paper) GetRecentBars(_ context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("get_recent_bars"); err != nil {
		return nil, err
	}
	price, ok := p.quotes[symbol]
	if !ok {
		return nil, NewError(KindInvalidRequest, "get_recent_bars",
			fmt.Errorf("no quote for %s", symbol))
	}

	step := time.Duration(domrepo.MinutesPerBar(tf)) * time.Minute
	end := p.now().Truncate(step)
	bars := make([]models.Bar, limit)
	pr := price
	for i := limit - 1; i >= 0; i-- {
		drift := 1 + (p.rng.Float64()-0.5)*0.004
		open := pr / drift
		high := open
		if pr > high {
			high = pr
		}
		low := open
		if pr < low {
			low = pr
		}
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timeframe: string(tf),
			Open:      open,
			High:      high * 1.001,
			Low:       low * 0.999,
			Close:     pr,
			Volume:    1000 + p.rng.Float64()*9000,
			Timestamp: end.Add(-time.Duration(limit-1-i) * step),
		}
		pr = open
	}
	return bars, nil
}

// GetAccount reports the paper account.
func (p *Paper) GetAccount(_ context.Context) (*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("get_account"); err != nil {
		return nil, err
	}
	return &models.Account{
		Cash:        p.cash,
		BuyingPower: p.cash,
		Equity:      p.cash,
		FetchedAt:   p.now(),
	}, nil
}

// ListPositions reports live paper positions.
func (p *Paper) ListPositions(_ context.Context) ([]models.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeFailure("list_positions"); err != nil {
		return nil, err
	}
	out := make([]models.BrokerPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// fill executes the order at the current quote. Caller holds the lock.
func (p *Paper) fill(ord *models.Order) {
	price := p.quotes[ord.Symbol]
	ord.Status = models.OrderStatusFilled
	ord.FilledQty = ord.Quantity
	ord.FilledPrice = price
	ord.FilledAt = p.now()

	pos := p.positions[ord.Symbol]
	if pos == nil {
		pos = &models.BrokerPosition{Symbol: ord.Symbol}
		p.positions[ord.Symbol] = pos
	}
	qty := ord.Quantity
	if ord.Side == models.OrderSell {
		qty = -qty
		p.cash += ord.Quantity * price
	} else {
		p.cash -= ord.Quantity * price
	}
	pos.Quantity += qty
	pos.EntryPrice = price
	if pos.Quantity == 0 {
		delete(p.positions, ord.Symbol)
	}
}

func (p *Paper) copyOrder(ord *models.Order) *models.Order {
	cp := *ord
	return &cp
}
