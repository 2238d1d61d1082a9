// Package mtf reconciles per-timeframe oscillator signals into one
// consensus decision.
package mtf

import (
	"fmt"
	"math"
	"time"

	"PulseTrade/internal/domain/models"
	domrepo "PulseTrade/internal/domain/repository"
)

// Config holds validator weights and thresholds. The resolution thresholds
// are empirically chosen and kept configurable for tuning.
type Config struct {
	Primary       domrepo.Timeframe
	Confirmations []domrepo.Timeframe

	Weights map[domrepo.Timeframe]float64 // sums to 1 across canonical set
	Decay   map[domrepo.Timeframe]float64 // staleness discount on strength

	MinConfirmation  float64 // fraction of confirmations that must agree
	RequireAlignment bool    // force signal 0 when alignment fails

	ConsensusGate         float64 // |weighted score| needed for a nonzero consensus sign
	ConsensusFloor        float64 // |weighted score| needed for weighted-consensus resolution
	ConsensusCap          float64 // confidence cap for weighted-consensus resolution
	OverrideConfidence    float64 // confidence of a primary-timeframe override
	PriorityStrengthFloor float64 // min strength for timeframe-priority resolution
	PriorityConfidence    float64 // confidence of a timeframe-priority resolution
}

// DefaultConfig returns the canonical four-timeframe setup.
func DefaultConfig() Config {
	return Config{
		Primary:       domrepo.TF5Min,
		Confirmations: []domrepo.Timeframe{domrepo.TF15Min, domrepo.TF1Hour},
		Weights: map[domrepo.Timeframe]float64{
			domrepo.TF1Min:  0.10,
			domrepo.TF5Min:  0.30,
			domrepo.TF15Min: 0.35,
			domrepo.TF1Hour: 0.25,
		},
		Decay: map[domrepo.Timeframe]float64{
			domrepo.TF1Min:  0.95,
			domrepo.TF5Min:  0.85,
			domrepo.TF15Min: 0.75,
			domrepo.TF1Hour: 0.65,
		},
		MinConfirmation:       0.66,
		RequireAlignment:      false,
		ConsensusGate:         0.1,
		ConsensusFloor:        0.2,
		ConsensusCap:          0.9,
		OverrideConfidence:    0.7,
		PriorityStrengthFloor: 0.3,
		PriorityConfidence:    0.6,
	}
}

// Validator reconciles timeframe signals.
type Validator struct {
	cfg Config
	now func() time.Time
}

// New creates a validator.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg, now: time.Now}
}

// Validate reconciles one TimeframeSignal per timeframe into a consensus
// decision. All intermediate values are kept on the result.
func (v *Validator) Validate(symbol string, signals map[domrepo.Timeframe]models.TimeframeSignal) models.ConsensusResult {
	res := models.ConsensusResult{Symbol: symbol, Timestamp: v.now()}

	// 1. alignment against the primary timeframe
	primary, hasPrimary := signals[v.cfg.Primary]
	if !hasPrimary || primary.Signal == 0 {
		res.Conflicts = append(res.Conflicts, fmt.Sprintf("primary %s has no signal", v.cfg.Primary))
	} else {
		matched, total := 0, 0
		for _, tf := range v.cfg.Confirmations {
			cs, ok := signals[tf]
			if !ok {
				continue
			}
			total++
			if sign(cs.Signal) == sign(primary.Signal) && cs.Signal != 0 {
				matched++
			}
		}
		if total > 0 {
			res.AlignmentScore = float64(matched) / float64(total)
		}
		res.Aligned = res.AlignmentScore >= v.cfg.MinConfirmation
		if !res.Aligned {
			res.Conflicts = append(res.Conflicts,
				fmt.Sprintf("alignment %.2f below %.2f", res.AlignmentScore, v.cfg.MinConfirmation))
		}
	}

	// 2. weighted consensus
	var weighted, totalWeight, buyWeight, sellWeight float64
	for tf, ts := range signals {
		w := v.cfg.Weights[tf]
		if w == 0 {
			continue
		}
		decay := v.cfg.Decay[tf]
		if decay == 0 {
			decay = 1
		}
		totalWeight += w
		weighted += float64(ts.Signal) * ts.Strength * decay * w
		switch {
		case ts.Signal > 0:
			buyWeight += w
		case ts.Signal < 0:
			sellWeight += w
		}
	}
	res.WeightedScore = weighted
	if math.Abs(weighted) > v.cfg.ConsensusGate {
		res.ConsensusSignal = sign(int(math.Copysign(1, weighted)))
	}
	if totalWeight > 0 {
		res.ConsensusStrength = math.Abs(weighted) / totalWeight
	}

	// 3. conflict detection
	if buyWeight > 0 && sellWeight > 0 {
		severity := math.Min(buyWeight, sellWeight) / totalWeight
		res.ConflictSeverity = severity
		res.Conflicts = append(res.Conflicts,
			fmt.Sprintf("opposing signals (severity %.2f)", severity))
	}

	// 4. resolution chain, first match wins
	switch {
	case hasPrimary && primary.Signal != 0:
		res.FinalSignal = sign(primary.Signal)
		res.Confidence = v.cfg.OverrideConfidence
		res.ResolutionMethod = models.ResolutionPrimaryOverride
	case math.Abs(weighted) > v.cfg.ConsensusFloor:
		res.FinalSignal = res.ConsensusSignal
		res.Confidence = math.Min(v.cfg.ConsensusCap, res.ConsensusStrength)
		res.ResolutionMethod = models.ResolutionWeightedConsensus
	default:
		if tf, ts, ok := v.highestPriority(signals); ok {
			res.FinalSignal = sign(ts.Signal)
			res.Confidence = v.cfg.PriorityConfidence
			res.ResolutionMethod = models.ResolutionTimeframePriority
			res.Conflicts = append(res.Conflicts, fmt.Sprintf("resolved by %s priority", tf))
		} else {
			res.ResolutionMethod = models.ResolutionUnresolved
		}
	}

	// 5. strict alignment gating
	if v.cfg.RequireAlignment && !res.Aligned && res.FinalSignal != 0 {
		res.Conflicts = append(res.Conflicts, "strict alignment required, signal gated")
		res.FinalSignal = 0
		res.Confidence = 0
	}

	return res
}

// highestPriority returns the highest-ranked timeframe carrying a nonzero
// signal with strength above the floor.
func (v *Validator) highestPriority(signals map[domrepo.Timeframe]models.TimeframeSignal) (domrepo.Timeframe, models.TimeframeSignal, bool) {
	var bestTF domrepo.Timeframe
	var best models.TimeframeSignal
	found := false
	for tf, ts := range signals {
		if ts.Signal == 0 || ts.Strength <= v.cfg.PriorityStrengthFloor {
			continue
		}
		if !found || domrepo.Priority(tf) > domrepo.Priority(bestTF) {
			bestTF, best, found = tf, ts, true
		}
	}
	return bestTF, best, found
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
