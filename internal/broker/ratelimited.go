package broker

import (
	"context"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/risk"
)

// RateLimited decorates a Broker so every call first acquires a slot from
// the sliding-window budget. Callers block rather than drop calls.
type RateLimited struct {
	next   domrepo.Broker
	budget *risk.RateBudget
}

// NewRateLimited wraps next with the budget.
func NewRateLimited(next domrepo.Broker, budget *risk.RateBudget) *RateLimited {
	return &RateLimited{next: next, budget: budget}
}

func (r *RateLimited) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := r.budget.Acquire(ctx); err != nil {
		return nil, NewError(KindConnection, "submit_order", err)
	}
	return r.next.SubmitOrder(ctx, req)
}

func (r *RateLimited) GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error) {
	if err := r.budget.Acquire(ctx); err != nil {
		return nil, NewError(KindConnection, "get_order_status", err)
	}
	return r.next.GetOrderStatus(ctx, orderID)
}

func (r *RateLimited) CancelOrder(ctx context.Context, orderID string) error {
	if err := r.budget.Acquire(ctx); err != nil {
		return NewError(KindConnection, "cancel_order", err)
	}
	return r.next.CancelOrder(ctx, orderID)
}

func (r *RateLimited) GetRecentBars(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Bar, error) {
	if err := r.budget.Acquire(ctx); err != nil {
		return nil, NewError(KindConnection, "get_recent_bars", err)
	}
	return r.next.GetRecentBars(ctx, symbol, tf, limit)
}

func (r *RateLimited) GetAccount(ctx context.Context) (*models.Account, error) {
	if err := r.budget.Acquire(ctx); err != nil {
		return nil, NewError(KindConnection, "get_account", err)
	}
	return r.next.GetAccount(ctx)
}

func (r *RateLimited) ListPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	if err := r.budget.Acquire(ctx); err != nil {
		return nil, NewError(KindConnection, "list_positions", err)
	}
	return r.next.ListPositions(ctx)
}
