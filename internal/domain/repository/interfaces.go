package repository

import (
	"context"

	"PulseTrade/internal/domain/models"
)

// MarketStream delivers live (price, volume) samples for the tracked symbols.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Sample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Broker is the abstract brokerage capability the engine trades through.
// Implementations surface failures as categorized broker errors so callers
// can pick a retry policy per category.
type Broker interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetRecentBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Bar, error)
	GetAccount(ctx context.Context) (*models.Account, error)
	ListPositions(ctx context.Context) ([]models.BrokerPosition, error)
}

// EventSink receives structured lifecycle/consensus events. The core does
// not depend on any particular transport.
type EventSink interface {
	Emit(ctx context.Context, ev *models.Event)
	Close() error
}

// TradeJournal persists closed trades for end-of-day analysis.
type TradeJournal interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, rec *models.TradeRecord) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records engine-level observability counters and gauges.
type Metrics interface {
	RecordSignal(symbol string, action string)
	RecordConsensus(method string)
	RecordOrder(side, outcome string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordRateWait(seconds float64)
	RecordLoopLatency(loop string, seconds float64)
	SetOpenPositions(n int)
	SetDailyLoss(v float64)
}
