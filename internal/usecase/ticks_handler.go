// Package usecase adapts external tick transports onto the series store.
package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/series"
	pkgkafka "PulseTrade/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages from Kafka into the series
// store. It is the alternative ingest path for deployments that fan
// market data out over a broker instead of a direct WebSocket feed.
type KafkaTicksHandler struct {
	topic   string
	store   *series.Store
	metrics domrepo.Metrics
}

// NewKafkaTicksHandler creates a handler for topic.
func NewKafkaTicksHandler(topic string, store *series.Store, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v}
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("consumer_unmarshal")
		}
		return err
	}
	ts := time.Unix(m.T, 0)
	if m.T > 1e11 { // ms
		ts = time.UnixMilli(m.T)
	}
	h.store.Record(models.Sample{
		Symbol:    m.Symbol,
		Price:     m.C,
		Volume:    m.V,
		Timestamp: ts,
	})
	if h.metrics != nil {
		h.metrics.RecordLastPrice(m.Symbol, m.C)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
