package mtf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

func ts(signal int, strength float64) models.TimeframeSignal {
	return models.TimeframeSignal{Signal: signal, Strength: strength}
}

func TestPrimaryOverrideWinsDespiteFailedAlignment(t *testing.T) {
	v := New(DefaultConfig())

	// primary buy, one confirmation agrees, one disagrees: 1/2 alignment
	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(1, 0.8),
		domrepo.TF15Min: ts(1, 0.7),
		domrepo.TF1Hour: ts(-1, 0.6),
	})

	assert.False(t, res.Aligned)
	assert.InDelta(t, 0.5, res.AlignmentScore, 1e-9)
	assert.Equal(t, 1, res.FinalSignal)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Equal(t, models.ResolutionPrimaryOverride, res.ResolutionMethod)
	assert.NotEmpty(t, res.Conflicts)
}

func TestWeightedConsensusAllBuy(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF1Min:  ts(1, 1.0),
		domrepo.TF5Min:  ts(1, 1.0),
		domrepo.TF15Min: ts(1, 1.0),
		domrepo.TF1Hour: ts(1, 1.0),
	})

	// 0.1*0.95 + 0.3*0.85 + 0.35*0.75 + 0.25*0.65 = 0.775
	assert.InDelta(t, 0.775, res.WeightedScore, 1e-9)
	assert.Equal(t, 1, res.ConsensusSignal)
	assert.Greater(t, res.ConsensusStrength, 0.6)
	assert.Equal(t, 1, res.FinalSignal)
	assert.True(t, res.Aligned)
	assert.Equal(t, 0.0, res.ConflictSeverity)
}

func TestWeightedConsensusResolutionWhenPrimarySilent(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(0, 0),
		domrepo.TF15Min: ts(1, 1.0),
		domrepo.TF1Hour: ts(1, 1.0),
	})

	// 0.35*0.75 + 0.25*0.65 = 0.425 > 0.2 floor
	assert.InDelta(t, 0.425, res.WeightedScore, 1e-9)
	assert.Equal(t, models.ResolutionWeightedConsensus, res.ResolutionMethod)
	assert.Equal(t, 1, res.FinalSignal)
	// confidence = min(cap, |ws|/totalWeight) = 0.425/0.9
	assert.InDelta(t, 0.425/0.9, res.Confidence, 1e-9)
}

func TestTimeframePriorityResolution(t *testing.T) {
	v := New(DefaultConfig())

	// weak opposing signals keep |weighted| under the consensus floor;
	// the 1Hour timeframe outranks 1Min
	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(0, 0),
		domrepo.TF1Min:  ts(1, 0.9),
		domrepo.TF1Hour: ts(-1, 0.9),
	})

	require.Equal(t, models.ResolutionTimeframePriority, res.ResolutionMethod)
	assert.Equal(t, -1, res.FinalSignal)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.Greater(t, res.ConflictSeverity, 0.0)
}

func TestUnresolvedWhenEverythingWeak(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(0, 0),
		domrepo.TF15Min: ts(1, 0.1),
		domrepo.TF1Hour: ts(0, 0),
	})

	assert.Equal(t, models.ResolutionUnresolved, res.ResolutionMethod)
	assert.Equal(t, 0, res.FinalSignal)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestStrictAlignmentGatesFinalSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireAlignment = true
	v := New(cfg)

	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(1, 0.8),
		domrepo.TF15Min: ts(-1, 0.7),
		domrepo.TF1Hour: ts(-1, 0.6),
	})

	assert.False(t, res.Aligned)
	assert.Equal(t, 0, res.FinalSignal)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestConflictSeverity(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Validate("AAPL", map[domrepo.Timeframe]models.TimeframeSignal{
		domrepo.TF5Min:  ts(1, 1.0),  // weight 0.30
		domrepo.TF15Min: ts(-1, 1.0), // weight 0.35
	})

	// severity = min(0.30, 0.35) / 0.65
	assert.InDelta(t, 0.30/0.65, res.ConflictSeverity, 1e-9)
}
