package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/pkg/logger"
)

var upgrader = websocket.Upgrader{}

func testServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(t *testing.T, url string, symbols []string) *Client {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return New(Config{
		APIKey:         "test",
		WebsocketURL:   url,
		ReconnectDelay: time.Millisecond,
		PingInterval:   time.Minute,
	}, symbols, log).(*Client)
}

func TestConnectSubscribeAndRead(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		// expect one subscribe frame per symbol
		for i := 0; i < 2; i++ {
			var sub map[string]string
			require.NoError(t, conn.ReadJSON(&sub))
			assert.Equal(t, "subscribe", sub["type"])
		}
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "trade",
			"data": []map[string]interface{}{
				{"s": "AAPL", "p": 187.5, "v": 300.0, "t": 1700000000000},
				{"s": "MSFT", "p": 410.2, "v": 150.0, "t": 1700000000500},
			},
		}))
		// non-trade frames are ignored
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		time.Sleep(50 * time.Millisecond)
	})

	c := newTestClient(t, wsURL(srv), []string{"AAPL", "MSFT"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	require.NoError(t, c.Subscribe(ctx))
	assert.True(t, c.IsConnected())

	samples, _ := c.Read(ctx)

	first := <-samples
	require.NotNil(t, first)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, 187.5, first.Price)
	assert.Equal(t, 300.0, first.Volume)
	assert.Equal(t, time.UnixMilli(1700000000000), first.Timestamp)

	second := <-samples
	require.NotNil(t, second)
	assert.Equal(t, "MSFT", second.Symbol)
}

func TestReadSurfacesDisconnect(t *testing.T) {
	srv := testServer(t, func(conn *websocket.Conn) {
		var sub map[string]string
		_ = conn.ReadJSON(&sub)
		// close immediately: the read loop must report, not spin
	})

	c := newTestClient(t, wsURL(srv), []string{"AAPL"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	require.NoError(t, c.Subscribe(ctx))

	_, errs := c.Read(ctx)
	select {
	case err := <-errs:
		require.Error(t, err)
	case <-ctx.Done():
		t.Fatal("no error surfaced after server close")
	}
	assert.False(t, c.IsConnected(), "dropped connection must read as disconnected")
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:0", []string{"AAPL"})
	assert.Error(t, c.Subscribe(context.Background()))
}
