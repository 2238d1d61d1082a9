package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "PulseTrade/internal/domain/repository"
)

func TestInsufficientHistoryIsZeroSignal(t *testing.T) {
	c := New(DefaultConfig())
	sig := c.Compute(domrepo.TF5Min, []float64{100, 101, 102})
	assert.Equal(t, 0, sig.Signal)
	assert.Equal(t, 0.0, sig.Strength)
	assert.Equal(t, "5Min", sig.Timeframe)
}

func TestCrossoverBuyBelowOversold(t *testing.T) {
	cfg := DefaultConfig()

	sig, strength := Crossover(cfg, 5, 10, 12, 11)
	assert.Equal(t, 1, sig)
	assert.InDelta(t, (20.0-12.0)/20.0, strength, 1e-9)
}

func TestCrossoverBuyRequiresOversoldBand(t *testing.T) {
	cfg := DefaultConfig()

	// crossed up but %K already at 45: no signal
	sig, strength := Crossover(cfg, 40, 44, 45, 44.5)
	assert.Equal(t, 0, sig)
	assert.Equal(t, 0.0, strength)
}

func TestCrossoverSellAboveOverbought(t *testing.T) {
	cfg := DefaultConfig()

	sig, strength := Crossover(cfg, 95, 90, 88, 89)
	assert.Equal(t, -1, sig)
	assert.InDelta(t, (88.0-80.0)/20.0, strength, 1e-9)
}

func TestCrossoverNoSignalWithoutCross(t *testing.T) {
	cfg := DefaultConfig()

	// %K above %D before and after: no cross
	sig, _ := Crossover(cfg, 15, 10, 16, 11)
	assert.Equal(t, 0, sig)
}

func TestComputeBoundsOnRandomWalk(t *testing.T) {
	c := New(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	closes := make([]float64, 120)
	p := 100.0
	for i := range closes {
		p *= 1 + (rng.Float64()-0.5)*0.02
		closes[i] = p
	}

	sig := c.Compute(domrepo.TF5Min, closes)
	require.False(t, math.IsNaN(sig.OscillatorK))
	require.False(t, math.IsNaN(sig.OscillatorD))
	assert.GreaterOrEqual(t, sig.OscillatorK, 0.0)
	assert.LessOrEqual(t, sig.OscillatorK, 100.0)
	assert.GreaterOrEqual(t, sig.OscillatorD, 0.0)
	assert.LessOrEqual(t, sig.OscillatorD, 100.0)
	assert.GreaterOrEqual(t, sig.Strength, 0.0)
	assert.LessOrEqual(t, sig.Strength, 1.0)
	assert.Contains(t, []int{-1, 0, 1}, sig.Signal)
}

func TestStochOfFlatSeriesIsNeutral(t *testing.T) {
	out := stochOf([]float64{50, 50, 50, 50, 50}, 3)
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Equal(t, 50.0, v)
	}
}

func TestStochOfPositionsWithinRange(t *testing.T) {
	out := stochOf([]float64{10, 20, 30, 15}, 3)
	require.Len(t, out, 2)
	assert.Equal(t, 100.0, out[0]) // 30 is the window high
	assert.Equal(t, 0.0, out[1])   // 15 is the low of [20,30,15]
}

func TestSMA(t *testing.T) {
	out := sma([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, out, 3)
	assert.InDelta(t, 2.0, out[0], 1e-9)
	assert.InDelta(t, 3.0, out[1], 1e-9)
	assert.InDelta(t, 4.0, out[2], 1e-9)
}
