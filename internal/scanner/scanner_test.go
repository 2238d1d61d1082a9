package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
	"PulseTrade/internal/series"
)

func fill(st *series.Store, symbol string, prices, volumes []float64) {
	for i := range prices {
		st.Record(models.Sample{
			Symbol:    symbol,
			Price:     prices[i],
			Volume:    volumes[i],
			Timestamp: time.Unix(int64(i), 0),
		})
	}
}

func constSlice(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestVolatilityConstantSeriesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(constSlice(100, 20), 98280))
}

func TestVolatilityAlternatingSeriesDeterministic(t *testing.T) {
	prices := make([]float64, 20)
	p := 100.0
	for i := range prices {
		prices[i] = p
		if i%2 == 0 {
			p *= 1.05
		} else {
			p /= 1.05
		}
	}
	v1 := Volatility(prices, 98280)
	v2 := Volatility(prices, 98280)
	assert.Greater(t, v1, 0.0)
	assert.Equal(t, v1, v2, "volatility must be reproducible")
}

func TestMomentumNeutralOnFlat(t *testing.T) {
	assert.Equal(t, 0.5, Momentum(constSlice(100, 14)))
}

func TestMomentumDirectional(t *testing.T) {
	up := []float64{100, 101, 102, 103, 104, 105, 106}
	down := []float64{106, 105, 104, 103, 102, 101, 100}
	assert.Equal(t, 1.0, Momentum(up))
	assert.Equal(t, 0.0, Momentum(down))
}

func TestVolumeSurge(t *testing.T) {
	base := constSlice(10000, 10)
	assert.True(t, VolumeSurge(append(base, 25000), 10, 1.5))
	assert.False(t, VolumeSurge(append(base, 12000), 10, 1.5))
	assert.False(t, VolumeSurge(constSlice(10000, 5), 10, 1.5), "insufficient baseline")
}

func TestScanSkipsInsufficientSamples(t *testing.T) {
	st := series.NewStore(100)
	fill(st, "AAPL", constSlice(100, 5), constSlice(1000, 5))

	s := New(st, DefaultConfig(), nil)
	assert.Empty(t, s.Scan())
}

func TestScanEmitsBuyOnHighVolUpMomentum(t *testing.T) {
	st := series.NewStore(100)
	// trending but jumpy series: every delta positive (momentum 1) with
	// uneven step sizes so log-return stdev is well above the tier
	prices := make([]float64, 24)
	p := 100.0
	for i := range prices {
		prices[i] = p
		if i%2 == 0 {
			p *= 1.02
		} else {
			p *= 1.001
		}
	}
	volumes := constSlice(10000, 24)
	volumes[len(volumes)-1] = 30000
	fill(st, "AAPL", prices, volumes)

	cfg := DefaultConfig()
	cfg.HighVolatility = 0.2 // series is ~1%/sample, comfortably above
	s := New(st, cfg, nil)

	sigs := s.Scan()
	require.Len(t, sigs, 1)
	sig := sigs[0]
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.True(t, sig.VolumeSurge)
	assert.GreaterOrEqual(t, sig.Confidence, cfg.MinConfidence)
	assert.LessOrEqual(t, sig.Confidence, 1.0)
	assert.Equal(t, cfg.TargetProfit, sig.TargetProfit)
	assert.Equal(t, cfg.StopLoss, sig.StopLoss)
}

func TestScanSuppressesLowConfidence(t *testing.T) {
	st := series.NewStore(100)
	// calm series: volatility below both tiers
	prices := make([]float64, 24)
	p := 100.0
	for i := range prices {
		prices[i] = p
		p *= 1.000001
	}
	fill(st, "AAPL", prices, constSlice(10000, 24))

	s := New(st, DefaultConfig(), nil)
	assert.Empty(t, s.Scan())
}

func TestScanSortsByConfidenceDesc(t *testing.T) {
	st := series.NewStore(100)

	mk := func(sym string, bigStep float64) {
		prices := make([]float64, 24)
		p := 100.0
		for i := range prices {
			prices[i] = p
			if i%2 == 0 {
				p *= bigStep
			} else {
				p *= 1.0005
			}
		}
		vols := constSlice(10000, 24)
		vols[23] = 30000
		fill(st, sym, prices, vols)
	}
	mk("AAPL", 1.01)
	mk("TSLA", 1.03)

	cfg := DefaultConfig()
	cfg.HighVolatility = 0.2
	cfg.MediumVolatility = 0.1
	sigs := New(st, cfg, nil).Scan()

	require.NotEmpty(t, sigs)
	for i := 1; i < len(sigs); i++ {
		assert.GreaterOrEqual(t, sigs[i-1].Confidence, sigs[i].Confidence)
	}
}
