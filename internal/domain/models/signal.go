package models

import "time"

// Action is the trade direction a signal recommends.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is a scanner candidate. Signals are never mutated after creation;
// a fresh scan replaces them.
type Signal struct {
	Symbol       string
	Action       Action
	Confidence   float64 // [0,1]
	Price        float64
	Volatility   float64 // annualized
	Momentum     float64 // [0,1], 0.5 neutral
	VolumeSurge  bool
	TargetProfit float64 // fraction, e.g. 0.003
	StopLoss     float64 // fraction, e.g. 0.002
	Timestamp    time.Time
}

// TimeframeSignal is the oscillator reading for one (symbol, timeframe).
// Superseded, not merged, by the next computation.
type TimeframeSignal struct {
	Timeframe   string
	Signal      int     // -1, 0, 1
	Strength    float64 // [0,1]
	OscillatorK float64
	OscillatorD float64
	Timestamp   time.Time
}

// ConsensusResult is the reconciled multi-timeframe decision with all
// intermediate values kept for observability.
type ConsensusResult struct {
	Symbol            string
	FinalSignal       int     // -1, 0, 1
	Confidence        float64 // [0,1]
	ResolutionMethod  string
	Aligned           bool
	AlignmentScore    float64
	WeightedScore     float64
	ConsensusSignal   int
	ConsensusStrength float64
	ConflictSeverity  float64
	Conflicts         []string
	Timestamp         time.Time
}

// Resolution methods reported in ConsensusResult.
const (
	ResolutionPrimaryOverride   = "primary_override"
	ResolutionWeightedConsensus = "weighted_consensus"
	ResolutionTimeframePriority = "timeframe_priority"
	ResolutionUnresolved        = "unresolved"
)

// VolumeConfirmation is the volume filter verdict for a candidate signal.
type VolumeConfirmation struct {
	Confirmed     bool
	Score         float64 // advisory, [0,1]
	VolumeRatio   float64
	Percentile    float64
	IsVolumeSpike bool
	Trend         string // "increasing", "stable", "decreasing"
	Reasons       []string
}
