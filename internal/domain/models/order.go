package models

import "time"

// OrderSide is the broker-facing direction of an order.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderType is the broker order type.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus as reported by the broker.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// IsTerminal reports whether the status is final.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusRejected
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Type       OrderType
	LimitPrice float64 // ignored for market orders
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Quantity    float64
	Type        OrderType
	Status      OrderStatus
	FilledQty   float64
	FilledPrice float64
	SubmittedAt time.Time
	FilledAt    time.Time
}

// BrokerPosition is a position as reported by the broker, used for
// startup reconciliation.
type BrokerPosition struct {
	Symbol     string
	Quantity   float64 // negative for short
	EntryPrice float64
}
