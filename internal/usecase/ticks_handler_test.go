package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/series"
)

func TestTicksHandlerRecordsSample(t *testing.T) {
	store := series.NewStore(16)
	h := NewKafkaTicksHandler("ticks", store, nil)

	assert.Equal(t, "ticks", h.Topic())

	raw := []byte(`{"symbol":"AAPL","t":1700000000,"c":187.25,"v":320}`)
	require.NoError(t, h.Handle(context.Background(), raw))

	w := store.Window("AAPL", 1)
	require.Len(t, w, 1)
	assert.Equal(t, 187.25, w[0].Price)
	assert.Equal(t, 320.0, w[0].Volume)
	assert.Equal(t, time.Unix(1700000000, 0), w[0].Timestamp)
}

func TestTicksHandlerNormalizesMilliseconds(t *testing.T) {
	store := series.NewStore(16)
	h := NewKafkaTicksHandler("ticks", store, nil)

	raw := []byte(`{"symbol":"MSFT","t":1700000000500,"c":401.1,"v":10}`)
	require.NoError(t, h.Handle(context.Background(), raw))

	w := store.Window("MSFT", 1)
	require.Len(t, w, 1)
	assert.Equal(t, time.UnixMilli(1700000000500), w[0].Timestamp)
}

func TestTicksHandlerRejectsMalformedPayload(t *testing.T) {
	store := series.NewStore(16)
	h := NewKafkaTicksHandler("ticks", store, nil)

	err := h.Handle(context.Background(), []byte(`{"symbol":`))
	require.Error(t, err)
	assert.Zero(t, store.Len("AAPL"))
}
