// Package stream implements a MarketStream backed by a trades WebSocket
// feed. Each trade frame becomes a Sample for the series store.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PulseTrade/internal/domain/models"
	drepo "PulseTrade/internal/domain/repository"
	"PulseTrade/pkg/logger"
)

// Config holds market data feed settings.
type Config struct {
	APIKey         string        `yaml:"api_key" validate:"required"`
	WebsocketURL   string        `yaml:"websocket_url" validate:"required,url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

// Client is a WebSocket MarketStream. Callers retry Read in a loop, so
// every connection carries its own done channel: a read failure marks
// the client disconnected and stops that connection's ping loop, and
// the next Connect starts fresh.
type Client struct {
	cfg     Config
	symbols []string
	log     *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{} // closed when the current connection dies
}

// New creates a MarketStream for the given symbol universe.
func New(cfg Config, symbols []string, log *logger.Logger) drepo.MarketStream {
	return &Client{cfg: cfg, symbols: symbols, log: log}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.cfg.WebsocketURL, c.cfg.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	c.mu.Unlock()
	c.log.Info("market stream connected")
	return nil
}

// Subscribe subscribes to the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()
	if conn == nil || !ok {
		return fmt.Errorf("stream not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("market stream subscribed", logger.Strings("symbols", c.symbols))
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read streams Samples and errors until ctx is cancelled or the
// connection drops. A drop marks the client disconnected so the caller's
// next Connect dials fresh. Samples are dropped, not blocked on, under
// backpressure; the series store only cares about the latest window.
func (c *Client) Read(ctx context.Context) (<-chan *models.Sample, <-chan error) {
	samples := make(chan *models.Sample, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if conn == nil || done == nil {
		errs <- fmt.Errorf("stream not connected")
		close(samples)
		close(errs)
		return samples, errs
	}

	// ping loop, scoped to this connection
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	// read loop
	go func() {
		defer close(samples)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, b, err := conn.ReadMessage()
				if err != nil {
					c.markDead()
					errs <- fmt.Errorf("stream read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-trade frames
					continue
				}
				if m.Type != "trade" {
					continue
				}
				for _, d := range m.Data {
					sample := &models.Sample{
						Symbol:    d.S,
						Price:     d.P,
						Volume:    d.V,
						Timestamp: time.UnixMilli(d.T),
					}
					select {
					case samples <- sample:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return samples, errs
}

// markDead flags the current connection unusable and releases its ping
// loop. Safe to call more than once per connection.
func (c *Client) markDead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.done != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

// Reconnect closes and re-establishes the subscription.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.cfg.ReconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.markDead()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
