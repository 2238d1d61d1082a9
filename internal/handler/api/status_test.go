package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/broker"
	"PulseTrade/internal/domain/models"
	"PulseTrade/internal/engine"
	"PulseTrade/internal/events"
	"PulseTrade/internal/mtf"
	"PulseTrade/internal/position"
	"PulseTrade/internal/risk"
	"PulseTrade/internal/scanner"
	"PulseTrade/internal/series"
	"PulseTrade/internal/volume"
	"PulseTrade/pkg/logger"
)

type statusFixture struct {
	handler *StatusHandler
	echo    *echo.Echo
	paper   *broker.Paper
	mgr     *position.Manager
	rec     *events.Recorder
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	store := series.NewStore(series.DefaultCapacity)
	paper := broker.NewPaper(100_000)
	ctl := risk.NewController(risk.Config{DailyLossLimit: 500, MaxConcurrentPositions: 3}, nil)
	rec := events.NewRecorder(64)
	mgr := position.NewManager(position.DefaultConfig(), paper, ctl, rec, log)

	eng := engine.New(engine.DefaultConfig([]string{"AAPL"}), engine.Deps{
		Store:     store,
		Scanner:   scanner.New(store, scanner.DefaultConfig(), nil),
		Validator: mtf.New(mtf.DefaultConfig()),
		VolFilter: volume.New(volume.DefaultConfig()),
		Manager:   mgr,
		RiskCtl:   ctl,
		Broker:    paper,
		Events:    rec,
		Log:       log,
	})

	f := &statusFixture{
		handler: NewStatusHandler(log, eng, rec, nil, nil),
		echo:    echo.New(),
		paper:   paper,
		mgr:     mgr,
		rec:     rec,
	}
	f.handler.RegisterRoutes(f.echo)
	return f
}

func (f *statusFixture) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	f.echo.ServeHTTP(rr, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func (f *statusFixture) post(t *testing.T, path, payload string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	f.echo.ServeHTTP(rr, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestPositionsEndpoint(t *testing.T) {
	f := newStatusFixture(t)
	f.paper.SetQuote("AAPL", 100)
	_, err := f.mgr.Open(context.Background(), &models.Signal{
		Symbol:       "AAPL",
		Action:       models.ActionBuy,
		TargetProfit: 0.003,
		StopLoss:     0.002,
	}, 10)
	require.NoError(t, err)

	code, body := f.get(t, "/api/positions")
	assert.Equal(t, http.StatusOK, code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	pos := data[0].(map[string]interface{})
	assert.Equal(t, "AAPL", pos["Symbol"])
	assert.Equal(t, "OPEN", pos["State"])
}

func TestRiskEndpoint(t *testing.T) {
	f := newStatusFixture(t)
	code, body := f.get(t, "/api/risk")
	assert.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, 500.0, data["DailyLossLimit"])
	assert.Equal(t, 3.0, data["MaxConcurrentPositions"])
}

func TestStatsEndpointShape(t *testing.T) {
	f := newStatusFixture(t)
	code, body := f.get(t, "/api/stats")
	assert.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	for _, k := range []string{"trades", "wins", "losses", "win_rate", "net_pnl"} {
		assert.Contains(t, data, k)
	}
}

func TestErrorsEndpointFiltersFailures(t *testing.T) {
	f := newStatusFixture(t)
	ctx := context.Background()
	f.rec.Emit(ctx, &models.Event{Type: models.EventPositionOpened, Symbol: "A", Timestamp: time.Now()})
	f.rec.Emit(ctx, &models.Event{Type: models.EventPositionFailed, Symbol: "B", Timestamp: time.Now()})

	code, body := f.get(t, "/api/errors")
	assert.Equal(t, http.StatusOK, code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	ev := data[0].(map[string]interface{})
	assert.Equal(t, "position_failed", ev["type"])
	assert.Equal(t, "B", ev["symbol"])
}

func TestEventsEndpointSinceFilter(t *testing.T) {
	f := newStatusFixture(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.rec.Emit(ctx, &models.Event{Type: models.EventSignalEmitted, Symbol: "OLD", Timestamp: cutoff.Add(-time.Hour)})
	f.rec.Emit(ctx, &models.Event{Type: models.EventSignalEmitted, Symbol: "NEW", Timestamp: cutoff.Add(time.Hour)})

	code, body := f.get(t, "/api/events?since="+cutoff.Format(time.RFC3339))
	assert.Equal(t, http.StatusOK, code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
	ev := data[0].(map[string]interface{})
	assert.Equal(t, "NEW", ev["symbol"])
}

func TestClosePositionEndpoint(t *testing.T) {
	f := newStatusFixture(t)
	f.paper.SetQuote("AAPL", 100)
	_, err := f.mgr.Open(context.Background(), &models.Signal{
		Symbol:       "AAPL",
		Action:       models.ActionBuy,
		TargetProfit: 0.003,
		StopLoss:     0.002,
	}, 10)
	require.NoError(t, err)

	code, body := f.post(t, "/api/positions/close", `{"symbol":"aapl"}`)
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "AAPL", data["symbol"])
	assert.Equal(t, "exit_requested", data["status"])
	assert.False(t, f.mgr.Has("AAPL"))

	// no open position anymore: envelope carries 404
	_, body = f.post(t, "/api/positions/close", `{"symbol":"AAPL"}`)
	assert.Equal(t, float64(http.StatusNotFound), body["status"])
}

func TestClosePositionRequiresSymbol(t *testing.T) {
	f := newStatusFixture(t)
	_, body := f.post(t, "/api/positions/close", `{}`)
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
}

func TestTradesEndpointWithoutJournal(t *testing.T) {
	f := newStatusFixture(t)
	code, body := f.get(t, "/api/trades")
	assert.Equal(t, http.StatusOK, code)

	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestHealthEndpoint(t *testing.T) {
	f := newStatusFixture(t)
	code, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["engine"])
	assert.NotContains(t, data, "journal", "absent collaborators are not reported")
}
