package models

import "time"

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionState tracks the lifecycle of a position.
type PositionState string

const (
	PositionNew           PositionState = "NEW"
	PositionOpen          PositionState = "OPEN"
	PositionExitRequested PositionState = "EXIT_REQUESTED"
	PositionClosed        PositionState = "CLOSED"
	PositionFailed        PositionState = "FAILED"
)

// Exit reasons recorded when a position leaves OPEN.
const (
	ExitReasonProfitTarget  = "PROFIT_TARGET"
	ExitReasonStopLoss      = "STOP_LOSS"
	ExitReasonMaxHold       = "MAX_HOLD"
	ExitReasonVolatilityCut = "VOLATILITY_CUT"
	ExitReasonManual        = "MANUAL"
)

// Position is exclusively owned and mutated by the position manager.
// At most one open Position exists per symbol.
type Position struct {
	Symbol      string
	Side        Side
	Quantity    float64
	EntryPrice  float64
	EntryTime   time.Time
	TargetPrice float64
	StopPrice   float64
	OrderID     string
	State       PositionState
	ExitReason  string
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnL float64
}

// TradeRecord is the journal row written when a position closes.
type TradeRecord struct {
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason string
	PnL        float64
}

// SessionStats accumulates per-session trading outcomes.
type SessionStats struct {
	Trades        int
	Wins          int
	Losses        int
	WinStreak     int
	LossStreak    int
	CurrentStreak int // positive = consecutive wins, negative = consecutive losses
	GrossProfit   float64
	GrossLoss     float64
	NetPnL        float64
}

// WinRate returns wins over closed trades, 0 if none.
func (s SessionStats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// RiskState is a read snapshot of the risk controller.
type RiskState struct {
	CurrentDailyLoss       float64
	DailyLossLimit         float64
	OpenPositions          int
	MaxConcurrentPositions int
	TradingHalted          bool
}
