package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"rateoracle/internal/fixedpoint"
)

// Adapter is the pricing pipeline. It only reads the registry.
type Adapter struct {
	registry *Registry
	feed     FeedClient
	clock    Clock
	logger   zerolog.Logger
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithClock overrides the time source.
func WithClock(c Clock) Option { return func(a *Adapter) { a.clock = c } }

// WithLogger attaches a logger; rejections are logged at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = l.With().Str("component", "adapter").Logger() }
}

// NewAdapter wires the pipeline to a registry and a feed client.
func NewAdapter(registry *Registry, feed FeedClient, opts ...Option) *Adapter {
	a := &Adapter{
		registry: registry,
		feed:     feed,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = realClock{}
	}
	return a
}

// Peek converts amount of base into quote using the latest checked rate.
// It returns the converted amount and the feed's update time.
func (a *Adapter) Peek(ctx context.Context, base, quote AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error) {
	return a.price(ctx, base, quote, amount)
}

// Get behaves exactly like Peek. It exists for callers that expect the
// state-changing name; the adapter itself keeps no per-call state.
func (a *Adapter) Get(ctx context.Context, base, quote AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error) {
	return a.price(ctx, base, quote, amount)
}

func (a *Adapter) price(ctx context.Context, base, quote AssetID, amount *uint256.Int) (*uint256.Int, time.Time, error) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	if base == quote {
		return amount.Clone(), a.clock.Now(), nil
	}

	pair := Pair{Base: base, Quote: quote}
	rate, updatedAt, err := a.rate(ctx, pair)
	if err != nil {
		a.logger.Debug().Err(err).Str("pair", pair.String()).Msg("price rejected")
		return nil, time.Time{}, fmt.Errorf("price %s: %w", pair, err)
	}

	value, ok := fixedpoint.MulUnit(amount, rate)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("price %s: amount %s: %w", pair, amount.Dec(), ErrOverflow)
	}
	return value, updatedAt, nil
}

// rate resolves the checked 18-decimal rate for a non-identity pair.
func (a *Adapter) rate(ctx context.Context, pair Pair) (*uint256.Int, time.Time, error) {
	src, ok, err := a.registry.Lookup(ctx, pair.Base, pair.Quote)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !ok {
		return nil, time.Time{}, ErrSourceNotFound
	}

	report, err := a.feed.QueryRate(ctx, src.FeedID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query rate %s: %w", src.FeedID.Hex(), err)
	}
	if report.Rate == nil || report.Rate.IsZero() {
		return nil, time.Time{}, ErrInvalidRate
	}

	if src.MaxAge > 0 {
		// feeds report whole seconds; compare at that resolution
		age := a.clock.Now().Unix() - report.UpdatedAt.Unix()
		if age > int64(src.MaxAge/time.Second) {
			return nil, time.Time{}, fmt.Errorf("age %ds exceeds %s: %w", age, src.MaxAge, ErrStale)
		}
	}

	rate := fixedpoint.Rescale(report.Rate)
	if src.Inverse {
		inverted, ok := fixedpoint.Invert(rate)
		if !ok {
			return nil, time.Time{}, ErrCannotInvertZero
		}
		rate = inverted
	}

	if !src.MinPrice.IsZero() && rate.Lt(&src.MinPrice) {
		return nil, time.Time{}, fmt.Errorf("rate %s < %s: %w", rate.Dec(), src.MinPrice.Dec(), ErrBelowMin)
	}
	if !src.MaxPrice.IsZero() && rate.Gt(&src.MaxPrice) {
		return nil, time.Time{}, fmt.Errorf("rate %s > %s: %w", rate.Dec(), src.MaxPrice.Dec(), ErrAboveMax)
	}

	return rate, report.UpdatedAt, nil
}
