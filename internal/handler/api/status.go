package api

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/engine"
	"PulseTrade/internal/events"
	xhttp "PulseTrade/pkg/http"
	xlogger "PulseTrade/pkg/logger"
)

// StatusHandler exposes engine state over HTTP, plus a single control
// endpoint for flattening a position by hand.
type StatusHandler struct {
	logger   *xlogger.Logger
	engine   *engine.Engine
	recorder *events.Recorder
	journal  domrepo.TradeJournal // optional
	stream   domrepo.MarketStream // optional
}

// NewStatusHandler creates the status API handler. journal and stream
// may be nil; the health view reports them as absent.
func NewStatusHandler(logger *xlogger.Logger, eng *engine.Engine, rec *events.Recorder, journal domrepo.TradeJournal, stream domrepo.MarketStream) *StatusHandler {
	return &StatusHandler{
		logger:   logger,
		engine:   eng,
		recorder: rec,
		journal:  journal,
		stream:   stream,
	}
}

// RegisterRoutes attaches the status routes.
func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/consensus", h.Consensus)
	g.GET("/positions", h.Positions)
	g.GET("/stats", h.Stats)
	g.GET("/risk", h.Risk)
	g.GET("/events", h.Events)
	g.GET("/errors", h.Errors)
	g.POST("/positions/close", h.ClosePosition)
	g.GET("/trades", h.Trades)
	e.GET("/healthz", h.Health)
}

// tradeHistory is the optional read side of the journal.
type tradeHistory interface {
	Recent(ctx context.Context, limit int) ([]*models.TradeRecord, error)
}

// Trades returns the newest journaled trades when a journal is wired.
func (h *StatusHandler) Trades(c echo.Context) error {
	hist, ok := h.journal.(tradeHistory)
	if !ok {
		return xhttp.SuccessResponse(c, []*models.TradeRecord{})
	}
	n := queryInt(c, "limit", 50)
	trades, err := hist.Recent(c.Request().Context(), n)
	if err != nil {
		h.logger.Error("trade history query failed", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, trades)
}

// Signals returns the latest scan results.
func (h *StatusHandler) Signals(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Signals())
}

// Consensus returns the latest consensus result per symbol.
func (h *StatusHandler) Consensus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Consensus())
}

// Positions returns the live position set.
func (h *StatusHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Positions())
}

// Stats returns session trading outcomes.
func (h *StatusHandler) Stats(c echo.Context) error {
	stats := h.engine.Stats()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"trades":         stats.Trades,
		"wins":           stats.Wins,
		"losses":         stats.Losses,
		"win_rate":       stats.WinRate(),
		"win_streak":     stats.WinStreak,
		"loss_streak":    stats.LossStreak,
		"current_streak": stats.CurrentStreak,
		"gross_profit":   stats.GrossProfit,
		"gross_loss":     stats.GrossLoss,
		"net_pnl":        stats.NetPnL,
	})
}

// Risk returns the risk controller snapshot.
func (h *StatusHandler) Risk(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.RiskState())
}

// Events returns recent engine events, newest first. A since query
// param (RFC3339 or unix seconds) drops anything older.
func (h *StatusHandler) Events(c echo.Context) error {
	n := queryInt(c, "limit", 50)
	evs := h.recorder.Recent(n, nil)
	if since, ok := xhttp.ParseTime(c.QueryParam("since")); ok {
		kept := evs[:0]
		for _, ev := range evs {
			if !ev.Timestamp.Before(since) {
				kept = append(kept, ev)
			}
		}
		evs = kept
	}
	return xhttp.SuccessResponse(c, evs)
}

// Errors returns recent failure events, newest first.
func (h *StatusHandler) Errors(c echo.Context) error {
	n := queryInt(c, "limit", 50)
	return xhttp.SuccessResponse(c, h.recorder.RecentFailures(n))
}

type closePositionRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

// ClosePosition force-closes the open position on the requested symbol.
func (h *StatusHandler) ClosePosition(c echo.Context) error {
	req := new(closePositionRequest)
	if vErr := xhttp.ReadAndValidateRequest(c, req); vErr != nil {
		return xhttp.BadRequestResponse(c, vErr)
	}
	symbol := strings.ToUpper(req.Symbol)
	if err := h.engine.Flatten(c.Request().Context(), symbol); err != nil {
		return xhttp.NotFoundResponse(c, map[string]string{"error": err.Error()})
	}
	h.logger.Info("manual close requested", xlogger.String("symbol", symbol))
	return xhttp.SuccessResponse(c, map[string]string{"symbol": symbol, "status": "exit_requested"})
}

// Health reports component liveness.
func (h *StatusHandler) Health(c echo.Context) error {
	status := map[string]string{"engine": "ok"}
	if h.stream != nil {
		status["stream"] = "disconnected"
		if h.stream.IsConnected() {
			status["stream"] = "ok"
		}
	}
	if h.journal != nil {
		status["journal"] = "ok"
		if err := h.journal.Health(c.Request().Context()); err != nil {
			h.logger.Warn("journal health check failed", xlogger.Error(err))
			status["journal"] = "unavailable"
		}
	}
	return xhttp.SuccessResponse(c, status)
}

func queryInt(c echo.Context, name string, def int) int {
	n := xhttp.ParseIntDefault(c.QueryParam(name), def)
	if n <= 0 {
		return def
	}
	return n
}
