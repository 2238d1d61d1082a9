// Package indicator computes the per-timeframe oscillator signal: a
// stochastic oscillator applied to a Wilder-smoothed RSI series.
package indicator

import (
	"time"

	talib "github.com/markcheno/go-talib"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

// Config holds oscillator parameters.
type Config struct {
	RSIPeriod   int
	StochPeriod int
	KSmooth     int
	DSmooth     int
	Oversold    float64
	Overbought  float64
}

// DefaultConfig returns the standard 14/14/3/3 setup with 20/80 bands.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:   14,
		StochPeriod: 14,
		KSmooth:     3,
		DSmooth:     3,
		Oversold:    20,
		Overbought:  80,
	}
}

// StochRSI computes TimeframeSignals from close series.
type StochRSI struct {
	cfg Config
	now func() time.Time
}

// New creates a calculator.
func New(cfg Config) *StochRSI {
	return &StochRSI{cfg: cfg, now: time.Now}
}

// minBars is the history needed for one crossover comparison.
func (c *StochRSI) minBars() int {
	return c.cfg.RSIPeriod + c.cfg.StochPeriod + c.cfg.KSmooth + c.cfg.DSmooth + 1
}

// Compute returns the oscillator signal for one timeframe. Insufficient
// history yields a zero signal, not an error.
func (c *StochRSI) Compute(tf domrepo.Timeframe, closes []float64) models.TimeframeSignal {
	out := models.TimeframeSignal{Timeframe: string(tf), Timestamp: c.now()}
	if len(closes) < c.minBars() {
		return out
	}

	// Wilder RSI: talib uses the same EMA with center-of-mass period-1.
	rsi := talib.Rsi(closes, c.cfg.RSIPeriod)
	rsi = rsi[c.cfg.RSIPeriod:] // drop the warmup zeros

	kRaw := stochOf(rsi, c.cfg.StochPeriod)
	if len(kRaw) < c.cfg.KSmooth+c.cfg.DSmooth {
		return out
	}
	k := sma(kRaw, c.cfg.KSmooth)
	d := sma(k, c.cfg.DSmooth)
	if len(k) < 2 || len(d) < 2 {
		return out
	}
	// align: d is shorter than k by DSmooth-1
	k = k[len(k)-len(d):]

	curK, prevK := k[len(k)-1], k[len(k)-2]
	curD, prevD := d[len(d)-1], d[len(d)-2]
	out.OscillatorK = curK
	out.OscillatorD = curD
	out.Signal, out.Strength = Crossover(c.cfg, prevK, prevD, curK, curD)
	return out
}

// Crossover applies the %K/%D crossover rule: buy when %K crosses above
// %D below the oversold band, sell when %K crosses below %D above the
// overbought band. Strength is the normalized distance from the band.
func Crossover(cfg Config, prevK, prevD, curK, curD float64) (int, float64) {
	crossedUp := prevK <= prevD && curK > curD
	crossedDown := prevK >= prevD && curK < curD

	switch {
	case crossedUp && curK < cfg.Oversold:
		return 1, clamp01((cfg.Oversold - curK) / cfg.Oversold)
	case crossedDown && curK > cfg.Overbought:
		return -1, clamp01((curK - cfg.Overbought) / (100 - cfg.Overbought))
	}
	return 0, 0
}

// ComputeFromBars extracts closes in chronological order and computes.
func (c *StochRSI) ComputeFromBars(tf domrepo.Timeframe, bars []models.Bar) models.TimeframeSignal {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return c.Compute(tf, closes)
}

// stochOf maps each value to its scaled position within the rolling
// high/low of the trailing window: 100*(v-min)/(max-min), 50 when flat.
func stochOf(xs []float64, window int) []float64 {
	if len(xs) < window {
		return nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	for i := window - 1; i < len(xs); i++ {
		lo, hi := xs[i], xs[i]
		for _, v := range xs[i-window+1 : i+1] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi == lo {
			out = append(out, 50)
			continue
		}
		out = append(out, 100*(xs[i]-lo)/(hi-lo))
	}
	return out
}

func sma(xs []float64, window int) []float64 {
	if window <= 1 {
		return xs
	}
	if len(xs) < window {
		return nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	sum := 0.0
	for i, v := range xs {
		sum += v
		if i >= window {
			sum -= xs[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
