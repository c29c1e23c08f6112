package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"rateoracle/internal/alerting"
	"rateoracle/internal/feed"
	"rateoracle/internal/fixedpoint"
	"rateoracle/internal/monitor"
	"rateoracle/internal/oracle"
)

// SimulateOptions describe one synthetic feed report run through the pipeline.
type SimulateOptions struct {
	Pair string
	// Rate is the human-readable feed rate (quote per base).
	Rate    string
	Age     time.Duration
	Inverse bool
	MaxAge  time.Duration
	Min     string
	Max     string
	Amount  string
	// Alert dispatches rejections through the configured notifier.
	Alert bool
}

// Simulate prices a pair and its mirror against a static feed without touching
// the real registry or feed.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	pair, err := oracle.ParsePair(opts.Pair)
	if err != nil {
		return err
	}
	if pair.Base == pair.Quote {
		return errors.New("simulate needs two distinct assets")
	}
	rate, err := fixedpoint.Parse(opts.Rate, fixedpoint.FeedDecimals)
	if err != nil {
		return fmt.Errorf("--rate: %w", err)
	}
	minPrice, err := parseOptionalDecimal(opts.Min)
	if err != nil {
		return fmt.Errorf("--min: %w", err)
	}
	maxPrice, err := parseOptionalDecimal(opts.Max)
	if err != nil {
		return fmt.Errorf("--max: %w", err)
	}
	amountRaw := strings.TrimSpace(opts.Amount)
	if amountRaw == "" {
		amountRaw = "1"
	}
	amount, err := fixedpoint.Parse(amountRaw, fixedpoint.Decimals)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}

	var notifier alerting.Notifier
	if opts.Alert {
		if !a.Config.Alerting.Enabled {
			return errors.New("--alert requires alerting.enabled")
		}
		notifier = a.newNotifier()
		if notifier == nil {
			return errors.New("--alert requires a configured alert channel")
		}
	}

	var operator common.Address
	allowAll := oracle.AuthorizerFunc(func(common.Address, oracle.Operation) bool { return true })
	registry := oracle.NewRegistry(allowAll, nil, a.Logger)
	feedID, err := oracle.ParseFeedID("simulate:" + pair.String())
	if err != nil {
		return err
	}
	if err := registry.SetSource(ctx, operator, pair.Base, pair.Quote, fixedpoint.Decimals, fixedpoint.Decimals, feedID, opts.Inverse); err != nil {
		return err
	}
	if err := registry.SetMaxAge(ctx, operator, pair.Base, pair.Quote, opts.MaxAge); err != nil {
		return err
	}
	if err := registry.SetBounds(ctx, operator, pair.Base, pair.Quote, minPrice, maxPrice); err != nil {
		return err
	}

	static := feed.NewStatic()
	now := time.Now().UTC()
	static.Set(feedID, rate, now.Add(-opts.Age))

	// the report age is measured against the same instant it was stamped from
	adapter := oracle.NewAdapter(registry, static, oracle.WithClock(fixedClock(now)), oracle.WithLogger(a.Logger))
	mon := monitor.New(monitor.Options{
		Pairs:         []oracle.Pair{pair, pair.Mirror()},
		Amount:        amount,
		AlertsEnabled: opts.Alert,
	}, nil, adapter, registry, notifier, nil, nil, a.Logger)

	// rejections are an expected outcome here and are printed per pair
	results, _ := mon.Round(ctx, now)
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(a.Out, "%s: rejected (%s) %s\n", res.Pair, monitor.KindName(res.Err), sanitizeInline(res.Err.Error()))
			continue
		}
		fmt.Fprintf(a.Out, "%s: %s %s = %s %s\n", res.Pair,
			fixedpoint.Format(amount, fixedpoint.Decimals), res.Pair.Base,
			fixedpoint.Format(res.Value, fixedpoint.Decimals), res.Pair.Quote)
	}
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }
