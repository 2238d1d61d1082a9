package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
	"PulseTrade/pkg/logger"
)

type captureSink struct {
	events   []models.Event
	closeErr error
	closed   bool
}

func (c *captureSink) Emit(_ context.Context, ev *models.Event) {
	c.events = append(c.events, *ev)
}

func (c *captureSink) Close() error {
	c.closed = true
	return c.closeErr
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	f := NewFanout(a, b)

	f.Emit(context.Background(), &models.Event{
		Type:      models.EventPositionOpened,
		Symbol:    "AAPL",
		Component: "position_manager",
		Timestamp: time.Now(),
	})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, models.EventPositionOpened, a.events[0].Type)
}

func TestFanoutCloseReturnsFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	a := &captureSink{closeErr: boom}
	b := &captureSink{}
	f := NewFanout(a, b)

	assert.Equal(t, boom, f.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed, "later sinks still close after a failure")
}

func TestLogSinkEmit(t *testing.T) {
	log, err := logger.New(&logger.Config{Level: "info", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	s := NewLogSink(log)
	// must not panic on sparse events
	s.Emit(context.Background(), &models.Event{
		Type:      models.EventDailyReset,
		Component: "engine",
	})
	s.Emit(context.Background(), &models.Event{
		Type:      models.EventConsensus,
		Symbol:    "AAPL",
		Component: "mtf_validator",
		Fields:    map[string]interface{}{"weighted_score": 0.775},
	})
	assert.NoError(t, s.Close())
}
