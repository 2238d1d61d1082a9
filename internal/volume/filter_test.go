package volume

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
)

func samplesOf(volumes []float64) []models.Sample {
	out := make([]models.Sample, len(volumes))
	for i, v := range volumes {
		out[i] = models.Sample{
			Symbol:    "AAPL",
			Price:     100,
			Volume:    v,
			Timestamp: time.Unix(int64(i), 0),
		}
	}
	return out
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestSpikeRatioAndFlag(t *testing.T) {
	f := New(DefaultConfig())

	vols := append(flat(10000, 50), 25000)
	res := f.Confirm(samplesOf(vols), models.Signal{})

	assert.InDelta(t, 2.5, res.VolumeRatio, 1e-9)
	assert.True(t, res.IsVolumeSpike)
	assert.True(t, res.Confirmed)
	assert.GreaterOrEqual(t, res.Percentile, 0.9)
}

func TestInsufficientHistoryNotConfirmed(t *testing.T) {
	f := New(DefaultConfig())

	res := f.Confirm(samplesOf(flat(10000, 5)), models.Signal{})
	assert.False(t, res.Confirmed)
	assert.Equal(t, 0.0, res.Score)
	require.NotEmpty(t, res.Reasons)
}

func TestLowRatioRejectedWithReason(t *testing.T) {
	f := New(DefaultConfig())

	vols := append(flat(10000, 50), 10500)
	res := f.Confirm(samplesOf(vols), models.Signal{})

	assert.False(t, res.Confirmed)
	assert.False(t, res.IsVolumeSpike)
	require.NotEmpty(t, res.Reasons)
}

func TestTrendClassification(t *testing.T) {
	f := New(DefaultConfig())

	increasing := append(flat(10000, 45), 14000, 14000, 14000, 14000, 14000, 30000)
	res := f.Confirm(samplesOf(increasing), models.Signal{})
	assert.Equal(t, TrendIncreasing, res.Trend)

	decreasing := append(flat(10000, 45), 6000, 6000, 6000, 6000, 6000, 6000)
	res = f.Confirm(samplesOf(decreasing), models.Signal{})
	assert.Equal(t, TrendDecreasing, res.Trend)

	stable := flat(10000, 51)
	res = f.Confirm(samplesOf(stable), models.Signal{})
	assert.Equal(t, TrendStable, res.Trend)
}

func TestScoreIsAdvisoryAndBounded(t *testing.T) {
	f := New(DefaultConfig())

	// strong everything: ratio, spike, percentile, rising trend
	vols := append(flat(10000, 45), 12000, 14000, 16000, 18000, 20000, 40000)
	res := f.Confirm(samplesOf(vols), models.Signal{})

	assert.True(t, res.Confirmed)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.Greater(t, res.Score, 0.5)
}

func TestConfirmedIndependentOfScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireSpike = true
	f := New(cfg)

	// ratio above threshold but no spike: confirmed stays true
	vols := append(flat(10000, 50), 15000)
	res := f.Confirm(samplesOf(vols), models.Signal{})

	assert.True(t, res.Confirmed)
	assert.False(t, res.IsVolumeSpike)
	assert.Contains(t, res.Reasons, "required volume spike absent")
}
