// Package volume gates candidate signals on relative volume metrics.
package volume

import (
	"fmt"
	"sort"

	"PulseTrade/internal/domain/models"
)

// Trend classifications.
const (
	TrendIncreasing = "increasing"
	TrendStable     = "stable"
	TrendDecreasing = "decreasing"
)

// Config holds filter thresholds.
type Config struct {
	AvgWindow          int     // preceding samples for the volume baseline
	PercentileLookback int     // samples for the percentile rank
	TrendWindow        int     // samples per half for trend comparison
	RatioThreshold     float64 // current/average ratio to confirm
	SpikeRatio         float64 // ratio that counts as a spike
	MinPercentile      float64 // percentile contributing to the score
	RequireSpike       bool    // spike contributes to the score only then
}

// DefaultConfig returns the filter defaults.
func DefaultConfig() Config {
	return Config{
		AvgWindow:          20,
		PercentileLookback: 50,
		TrendWindow:        5,
		RatioThreshold:     1.2,
		SpikeRatio:         2.0,
		MinPercentile:      0.6,
		RequireSpike:       false,
	}
}

// Filter computes volume confirmation verdicts.
type Filter struct {
	cfg Config
}

// New creates a filter.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Confirm evaluates a candidate signal against the sample window. The
// Confirmed gate depends only on the ratio threshold; Score is advisory.
func (f *Filter) Confirm(samples []models.Sample, _ models.Signal) models.VolumeConfirmation {
	res := models.VolumeConfirmation{Trend: TrendStable}
	if len(samples) < f.cfg.AvgWindow+1 {
		res.Reasons = append(res.Reasons, "insufficient volume history")
		return res
	}

	volumes := make([]float64, len(samples))
	for i, s := range samples {
		volumes[i] = s.Volume
	}
	cur := volumes[len(volumes)-1]

	// ratio of current volume to the preceding rolling average
	base := volumes[len(volumes)-1-f.cfg.AvgWindow : len(volumes)-1]
	avg := mean(base)
	if avg <= 0 {
		res.Reasons = append(res.Reasons, "zero baseline volume")
		return res
	}
	res.VolumeRatio = cur / avg
	res.IsVolumeSpike = res.VolumeRatio >= f.cfg.SpikeRatio
	res.Percentile = percentileRank(tail(volumes, f.cfg.PercentileLookback), cur)
	res.Trend = f.trend(volumes)

	// advisory score, additive composition
	score := 0.0
	if res.VolumeRatio >= f.cfg.RatioThreshold {
		score += 0.3
	} else {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("ratio %.2f below %.2f", res.VolumeRatio, f.cfg.RatioThreshold))
	}
	if res.IsVolumeSpike {
		score += 0.3
	} else if f.cfg.RequireSpike {
		res.Reasons = append(res.Reasons, "required volume spike absent")
	}
	if res.Percentile >= f.cfg.MinPercentile {
		score += 0.2
	}
	switch res.Trend {
	case TrendIncreasing:
		score += 0.2
	case TrendStable:
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	res.Score = score

	res.Confirmed = res.VolumeRatio >= f.cfg.RatioThreshold
	return res
}

// trend compares two adjacent rolling means of the most recent volumes.
func (f *Filter) trend(volumes []float64) string {
	w := f.cfg.TrendWindow
	if len(volumes) < 2*w || w <= 0 {
		return TrendStable
	}
	recent := mean(volumes[len(volumes)-w:])
	prior := mean(volumes[len(volumes)-2*w : len(volumes)-w])
	if prior <= 0 {
		return TrendStable
	}
	switch {
	case recent > prior*1.05:
		return TrendIncreasing
	case recent < prior*0.95:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// percentileRank returns the fraction of lookback values at or below v.
func percentileRank(lookback []float64, v float64) float64 {
	if len(lookback) == 0 {
		return 0
	}
	sorted := append([]float64(nil), lookback...)
	sort.Float64s(sorted)
	n := sort.SearchFloat64s(sorted, v)
	// count equal values too
	for n < len(sorted) && sorted[n] <= v {
		n++
	}
	return float64(n) / float64(len(sorted))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
