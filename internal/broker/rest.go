// Package broker provides the brokerage implementations and the error
// taxonomy the engine categorizes retries with.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	xhttp "PulseTrade/pkg/http"
)

// RESTClient implements repository.Broker over a JSON REST gateway.
type RESTClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *xhttp.Client
}

// NewRESTClient builds a REST broker client. secret may be empty for
// gateways that authenticate with a bearer token alone.
func NewRESTClient(baseURL, apiKey, secret string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: secret,
		client:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type restOrder struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Qty         float64 `json:"qty"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	FilledQty   float64 `json:"filled_qty"`
	FilledPrice float64 `json:"filled_avg_price"`
	SubmittedAt int64   `json:"submitted_at"`
	FilledAt    int64   `json:"filled_at"`
}

func (o restOrder) toDomain() *models.Order {
	ord := &models.Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        models.OrderSide(o.Side),
		Quantity:    o.Qty,
		Type:        models.OrderType(o.Type),
		Status:      models.OrderStatus(o.Status),
		FilledQty:   o.FilledQty,
		FilledPrice: o.FilledPrice,
	}
	if o.SubmittedAt > 0 {
		ord.SubmittedAt = time.UnixMilli(o.SubmittedAt)
	}
	if o.FilledAt > 0 {
		ord.FilledAt = time.UnixMilli(o.FilledAt)
	}
	return ord
}

// SubmitOrder posts an order to the gateway.
func (c *RESTClient) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	var out restOrder
	err := c.do(ctx, "submit_order", &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/v2/orders",
		Body: map[string]interface{}{
			"symbol":      req.Symbol,
			"side":        string(req.Side),
			"qty":         req.Quantity,
			"type":        string(req.Type),
			"limit_price": req.LimitPrice,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// GetOrderStatus fetches the current order state.
func (c *RESTClient) GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error) {
	var out restOrder
	err := c.do(ctx, "get_order_status", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v2/orders/" + orderID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// CancelOrder cancels an order.
func (c *RESTClient) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, "cancel_order", &xhttp.RequestOptions{
		Method: xhttp.MethodDelete,
		URL:    c.baseURL + "/v2/orders/" + orderID,
	}, nil)
}

type restBar struct {
	T int64   `json:"t"` // ms
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// GetRecentBars fetches up to limit OHLCV bars for symbol/timeframe.
func (c *RESTClient) GetRecentBars(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Bar, error) {
	var out struct {
		Bars []restBar `json:"bars"`
	}
	err := c.do(ctx, "get_recent_bars", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v2/bars/" + symbol,
		QueryParams: map[string][]string{
			"timeframe": {string(tf)},
			"limit":     {strconv.Itoa(limit)},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	bars := make([]models.Bar, len(out.Bars))
	for i, b := range out.Bars {
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timeframe: string(tf),
			Open:      b.O,
			High:      b.H,
			Low:       b.L,
			Close:     b.C,
			Volume:    b.V,
			Timestamp: time.UnixMilli(b.T),
		}
	}
	return bars, nil
}

// GetAccount fetches the account snapshot.
func (c *RESTClient) GetAccount(ctx context.Context) (*models.Account, error) {
	var out struct {
		Cash        float64 `json:"cash"`
		BuyingPower float64 `json:"buying_power"`
		Equity      float64 `json:"equity"`
	}
	if err := c.do(ctx, "get_account", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v2/account",
	}, &out); err != nil {
		return nil, err
	}
	return &models.Account{
		Cash:        out.Cash,
		BuyingPower: out.BuyingPower,
		Equity:      out.Equity,
		FetchedAt:   time.Now(),
	}, nil
}

// ListPositions fetches live broker positions.
func (c *RESTClient) ListPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	var out []struct {
		Symbol   string  `json:"symbol"`
		Qty      float64 `json:"qty"`
		AvgPrice float64 `json:"avg_entry_price"`
	}
	if err := c.do(ctx, "list_positions", &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v2/positions",
	}, &out); err != nil {
		return nil, err
	}
	positions := make([]models.BrokerPosition, len(out))
	for i, p := range out {
		positions[i] = models.BrokerPosition{
			Symbol:     p.Symbol,
			Quantity:   p.Qty,
			EntryPrice: p.AvgPrice,
		}
	}
	return positions, nil
}

// do sends the request and maps HTTP failures onto the broker taxonomy.
func (c *RESTClient) do(ctx context.Context, op string, opts *xhttp.RequestOptions, dest interface{}) error {
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["Authorization"] = "Bearer " + c.apiKey
	if c.apiSecret != "" {
		opts.Headers["X-API-Secret"] = c.apiSecret
	}

	resp, err := c.client.SendRequest(ctx, opts)
	if err != nil {
		return NewError(KindConnection, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return NewError(kindForStatus(resp.StatusCode), op,
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return NewError(KindInvalidRequest, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusForbidden:
		return KindInsufficientFunds
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest, status == http.StatusNotFound:
		return KindInvalidRequest
	case status >= 500:
		return KindConnection
	default:
		return KindUnknown
	}
}
