package oracle

import "errors"

// Error kinds. Every error returned by the registry or the pricing pipeline
// matches exactly one of these through errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrAuthorization = errors.New("authorization error")
	ErrMarketData    = errors.New("market data error")
	ErrFreshness     = errors.New("freshness error")
	ErrRange         = errors.New("range error")
	ErrArithmetic    = errors.New("arithmetic error")
)

// Specific failure reasons, each unwrapping to its kind.
var (
	ErrInvalidFeedID    = newReason(ErrConfiguration, "invalid feed id")
	ErrUnconfiguredPair = newReason(ErrConfiguration, "pair not configured")
	ErrInvalidBounds    = newReason(ErrConfiguration, "min must be below max")
	ErrInvalidMaxAge    = newReason(ErrConfiguration, "max age must be whole non-negative seconds")

	ErrUnauthorized = newReason(ErrAuthorization, "caller not authorized")

	ErrSourceNotFound = newReason(ErrMarketData, "source not found")
	ErrInvalidRate    = newReason(ErrMarketData, "invalid rate")

	ErrStale = newReason(ErrFreshness, "stale price")

	ErrBelowMin = newReason(ErrRange, "price below minimum")
	ErrAboveMax = newReason(ErrRange, "price above maximum")

	ErrCannotInvertZero = newReason(ErrArithmetic, "cannot invert zero")
	ErrOverflow         = newReason(ErrArithmetic, "multiplication overflow")
)

var kinds = []error{ErrConfiguration, ErrAuthorization, ErrMarketData, ErrFreshness, ErrRange, ErrArithmetic}

type reason struct {
	kind error
	msg  string
}

func newReason(kind error, msg string) error {
	return &reason{kind: kind, msg: msg}
}

func (r *reason) Error() string { return r.kind.Error() + ": " + r.msg }

func (r *reason) Unwrap() error { return r.kind }

// KindOf returns the error kind err belongs to, or nil for errors raised
// outside the adapter (transport failures, cancelled contexts).
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
