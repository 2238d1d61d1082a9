package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal   *prometheus.CounterVec
	consensusTotal *prometheus.CounterVec
	ordersTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	rateWait       prometheus.Histogram
	loopLatency    *prometheus.HistogramVec
	openPositions  prometheus.Gauge
	dailyLoss      prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsetrade_signals_total",
				Help: "Total number of scanner signals emitted",
			},
			[]string{"symbol", "action"},
		),
		consensusTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsetrade_consensus_total",
				Help: "Consensus computations by resolution method",
			},
			[]string{"method"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsetrade_orders_total",
				Help: "Broker orders by side and outcome",
			},
			[]string{"side", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsetrade_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsetrade_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		rateWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulsetrade_rate_wait_seconds",
				Help:    "Time spent blocked on the broker rate budget",
				Buckets: prometheus.DefBuckets,
			},
		),
		loopLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulsetrade_loop_duration_seconds",
				Help:    "Duration of one iteration per engine loop",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"loop"},
		),
		openPositions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsetrade_open_positions",
				Help: "Number of live positions",
			},
		),
		dailyLoss: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulsetrade_daily_loss",
				Help: "Accumulated daily realized loss",
			},
		),
	}
}

// RecordSignal records a scanner signal.
func (r *Recorder) RecordSignal(symbol string, action string) {
	r.signalsTotal.WithLabelValues(symbol, action).Inc()
}

// RecordConsensus records a consensus computation by resolution method.
func (r *Recorder) RecordConsensus(method string) {
	r.consensusTotal.WithLabelValues(method).Inc()
}

// RecordOrder records a broker order outcome.
func (r *Recorder) RecordOrder(side, outcome string) {
	r.ordersTotal.WithLabelValues(side, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordRateWait records time spent waiting on the rate budget.
func (r *Recorder) RecordRateWait(seconds float64) {
	r.rateWait.Observe(seconds)
}

// RecordLoopLatency records one iteration's duration for a loop.
func (r *Recorder) RecordLoopLatency(loop string, seconds float64) {
	r.loopLatency.WithLabelValues(loop).Observe(seconds)
}

// SetOpenPositions sets the live position gauge.
func (r *Recorder) SetOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

// SetDailyLoss sets the accumulated daily loss gauge.
func (r *Recorder) SetDailyLoss(v float64) {
	r.dailyLoss.Set(v)
}
