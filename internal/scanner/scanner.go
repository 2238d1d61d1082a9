// Package scanner computes rolling volatility, momentum and volume-surge
// metrics over the series store and emits candidate signals.
package scanner

import (
	"math"
	"sort"
	"time"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/series"
)

// Config holds scanner thresholds. Values are read-only after startup.
type Config struct {
	VolatilityWindow int     // samples for the volatility estimate
	MomentumWindow   int     // samples for the momentum estimate
	VolumeWindow     int     // preceding samples for the surge baseline
	PeriodsPerYear   float64 // annualization factor for sample spacing

	HighVolatility   float64 // annualized sigma for the high tier
	MediumVolatility float64 // annualized sigma for the medium tier
	VolumeSurgeRatio float64 // current/mean ratio that counts as a surge
	MinConfidence    float64 // signals below this are suppressed

	TargetProfit float64 // fraction attached to emitted signals
	StopLoss     float64 // fraction attached to emitted signals
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		VolatilityWindow: 20,
		MomentumWindow:   14,
		VolumeWindow:     10,
		PeriodsPerYear:   252 * 390, // one-minute spacing over US sessions
		HighVolatility:   0.5,
		MediumVolatility: 0.3,
		VolumeSurgeRatio: 1.5,
		MinConfidence:    0.4,
		TargetProfit:     0.003,
		StopLoss:         0.002,
	}
}

// Scanner scans the series store for candidate signals.
type Scanner struct {
	store   *series.Store
	cfg     Config
	metrics domrepo.Metrics
	now     func() time.Time
}

// New creates a scanner over the given store.
func New(store *series.Store, cfg Config, metrics domrepo.Metrics) *Scanner {
	return &Scanner{store: store, cfg: cfg, metrics: metrics, now: time.Now}
}

// Config returns the scanner's thresholds.
func (s *Scanner) Config() Config { return s.cfg }

// Scan evaluates every tracked symbol and returns candidates sorted by
// confidence descending. Symbols with insufficient samples are skipped,
// never errored.
func (s *Scanner) Scan() []models.Signal {
	var out []models.Signal
	for _, sym := range s.store.Symbols() {
		sig, ok := s.scanSymbol(sym)
		if !ok {
			continue
		}
		out = append(out, sig)
		if s.metrics != nil {
			s.metrics.RecordSignal(sig.Symbol, string(sig.Action))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func (s *Scanner) scanSymbol(symbol string) (models.Signal, bool) {
	need := s.cfg.VolatilityWindow
	if s.cfg.MomentumWindow > need {
		need = s.cfg.MomentumWindow
	}
	if s.cfg.VolumeWindow+1 > need {
		need = s.cfg.VolumeWindow + 1
	}
	window := s.store.Window(symbol, need)
	if len(window) < need {
		return models.Signal{}, false
	}

	prices := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for i, smp := range window {
		prices[i] = smp.Price
		volumes[i] = smp.Volume
	}

	vol := Volatility(tail(prices, s.cfg.VolatilityWindow), s.cfg.PeriodsPerYear)
	mom := Momentum(tail(prices, s.cfg.MomentumWindow))
	surge := VolumeSurge(volumes, s.cfg.VolumeWindow, s.cfg.VolumeSurgeRatio)
	last := prices[len(prices)-1]

	action, conf := s.classify(vol, mom, surge)
	if action == models.ActionHold || conf < s.cfg.MinConfidence {
		return models.Signal{}, false
	}

	return models.Signal{
		Symbol:       symbol,
		Action:       action,
		Confidence:   conf,
		Price:        last,
		Volatility:   vol,
		Momentum:     mom,
		VolumeSurge:  surge,
		TargetProfit: s.cfg.TargetProfit,
		StopLoss:     s.cfg.StopLoss,
		Timestamp:    s.now(),
	}, true
}

// classify applies the tiered thresholds. High volatility needs momentum
// beyond 0.6/0.4; medium volatility needs a stronger momentum tilt and a
// volume surge on top.
func (s *Scanner) classify(vol, mom float64, surge bool) (models.Action, float64) {
	switch {
	case vol > s.cfg.HighVolatility:
		if mom > 0.6 {
			return models.ActionBuy, s.confidence(vol, mom, surge, s.cfg.HighVolatility)
		}
		if mom < 0.4 {
			return models.ActionSell, s.confidence(vol, mom, surge, s.cfg.HighVolatility)
		}
	case vol > s.cfg.MediumVolatility && surge:
		if mom > 0.65 {
			return models.ActionBuy, s.confidence(vol, mom, surge, s.cfg.MediumVolatility)
		}
		if mom < 0.35 {
			return models.ActionSell, s.confidence(vol, mom, surge, s.cfg.MediumVolatility)
		}
	}
	return models.ActionHold, 0
}

// confidence scales with excess volatility over the tier threshold and the
// momentum tilt from neutral, with a flat bonus for a volume surge.
func (s *Scanner) confidence(vol, mom float64, surge bool, tier float64) float64 {
	conf := 0.4
	if tier > 0 {
		excess := (vol - tier) / tier
		if excess > 1 {
			excess = 1
		}
		conf += 0.3 * excess
	}
	conf += 0.2 * math.Abs(mom-0.5) / 0.5
	if surge {
		conf += 0.1
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

// Volatility is the annualized standard deviation of log returns over the
// price window. Identical consecutive prices yield exactly 0.
func Volatility(prices []float64, periodsPerYear float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, math.Log(prices[i]/prices[i-1]))
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range rets {
		sum += r
		sum2 += r * r
	}
	n := float64(len(rets))
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance * periodsPerYear)
}

// Momentum maps the gain/loss balance of price deltas to [0,1] with 0.5
// neutral: mean(gains) / (mean(gains) + mean(losses)).
func Momentum(prices []float64) float64 {
	if len(prices) < 2 {
		return 0.5
	}
	var gains, losses float64
	var nGains, nLosses int
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains += d
			nGains++
		} else if d < 0 {
			losses += -d
			nLosses++
		}
	}
	if nGains == 0 && nLosses == 0 {
		return 0.5
	}
	meanGain, meanLoss := 0.0, 0.0
	if nGains > 0 {
		meanGain = gains / float64(nGains)
	}
	if nLosses > 0 {
		meanLoss = losses / float64(nLosses)
	}
	if meanGain+meanLoss == 0 {
		return 0.5
	}
	return meanGain / (meanGain + meanLoss)
}

// VolumeSurge reports whether the latest volume exceeds ratio times the
// mean of the preceding baseline window.
func VolumeSurge(volumes []float64, baseline int, ratio float64) bool {
	if len(volumes) < baseline+1 || baseline <= 0 {
		return false
	}
	cur := volumes[len(volumes)-1]
	sum := 0.0
	for _, v := range volumes[len(volumes)-1-baseline : len(volumes)-1] {
		sum += v
	}
	mean := sum / float64(baseline)
	if mean <= 0 {
		return false
	}
	return cur > ratio*mean
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
