package broker

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes broker failures so call sites can pick a retry
// policy per category instead of guessing from error strings.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindConnection        ErrorKind = "connection"
	KindOrderTimeout      ErrorKind = "order_timeout"
	KindUnknown           ErrorKind = "unknown"
)

// Error is a categorized broker failure.
type Error struct {
	Kind ErrorKind
	Op   string // broker operation, e.g. "submit_order"
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("broker %s (%s)", e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds a categorized broker error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the category from err, KindUnknown if uncategorized.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// Retryable reports whether the category warrants a bounded retry.
// InsufficientFunds and InvalidRequest never recover by retrying.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindConnection, KindOrderTimeout:
		return true
	default:
		return false
	}
}

// ErrInsufficientData marks a symbol skipped this cycle for lack of
// samples or bars. Local recovery, never fatal.
var ErrInsufficientData = errors.New("insufficient data")

// ErrUnknownOrder is returned when an order id is not known to the broker.
var ErrUnknownOrder = errors.New("unknown order")
