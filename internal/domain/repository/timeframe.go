package repository

// Timeframe represents a bar resolution used for signal validation.
type Timeframe string

const (
	TF1Min  Timeframe = "1Min"
	TF5Min  Timeframe = "5Min"
	TF15Min Timeframe = "15Min"
	TF1Hour Timeframe = "1Hour"
)

// CanonicalTimeframes lists supported timeframes from lowest to highest.
func CanonicalTimeframes() []Timeframe {
	return []Timeframe{TF1Min, TF5Min, TF15Min, TF1Hour}
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1Min, TF5Min, TF15Min, TF1Hour:
		return true
	default:
		return false
	}
}

// Priority returns the conflict-resolution rank of a timeframe; higher
// timeframes outrank lower ones (1Hour > 15Min > 5Min > 1Min).
func Priority(tf Timeframe) int {
	switch tf {
	case TF1Hour:
		return 4
	case TF15Min:
		return 3
	case TF5Min:
		return 2
	case TF1Min:
		return 1
	default:
		return 0
	}
}

// MinutesPerBar returns the bar width in minutes.
func MinutesPerBar(tf Timeframe) int {
	switch tf {
	case TF1Min:
		return 1
	case TF5Min:
		return 5
	case TF15Min:
		return 15
	case TF1Hour:
		return 60
	default:
		return 1
	}
}

// NormalizeTimeframe converts a raw string to a valid timeframe (or 5Min).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return TF5Min
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return TF5Min
}
