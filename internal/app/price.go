package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rateoracle/internal/fixedpoint"
	"rateoracle/internal/monitor"
	"rateoracle/internal/oracle"
)

// PriceOptions configure the peek and get commands.
type PriceOptions struct {
	Pair string
	// Amount is a human decimal of the base asset; empty means 1.
	Amount string
}

// Peek prints the current value of an amount of base in quote.
func (a *App) Peek(ctx context.Context, opts PriceOptions) error {
	return a.price(ctx, opts, false)
}

// Get is Peek through the state-changing entry point.
func (a *App) Get(ctx context.Context, opts PriceOptions) error {
	return a.price(ctx, opts, true)
}

func (a *App) price(ctx context.Context, opts PriceOptions, get bool) error {
	pair, err := oracle.ParsePair(opts.Pair)
	if err != nil {
		return err
	}
	amountRaw := strings.TrimSpace(opts.Amount)
	if amountRaw == "" {
		amountRaw = "1"
	}
	amount, err := fixedpoint.Parse(amountRaw, fixedpoint.Decimals)
	if err != nil {
		return fmt.Errorf("--amount: %w", err)
	}

	return a.withRegistry(ctx, func(r *oracle.Registry) error {
		adapter := oracle.NewAdapter(r, a.newFeed(), oracle.WithLogger(a.Logger))
		fn := adapter.Peek
		if get {
			fn = adapter.Get
		}

		value, updatedAt, err := fn(ctx, pair.Base, pair.Quote, amount)
		if err != nil {
			return fmt.Errorf("%s: %w", monitor.KindName(err), err)
		}
		fmt.Fprintf(a.Out, "%s %s = %s %s (raw %s, updated %s)\n",
			fixedpoint.Format(amount, fixedpoint.Decimals), pair.Base,
			fixedpoint.Format(value, fixedpoint.Decimals), pair.Quote,
			value.Dec(), updatedAt.UTC().Format(time.RFC3339))
		return nil
	})
}

// FeedReports prints the report count and latest report of a feed.
func (a *App) FeedReports(ctx context.Context, feedLabel string) error {
	id, err := oracle.ParseFeedID(feedLabel)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return oracle.ErrInvalidFeedID
	}

	client := a.newFeed()
	count, err := client.QueryReportCount(ctx, id)
	if err != nil {
		return fmt.Errorf("query report count: %w", err)
	}
	fmt.Fprintf(a.Out, "feed:    %s\nreports: %d\n", id.Hex(), count)
	if count == 0 {
		return nil
	}

	report, err := client.QueryRate(ctx, id)
	if err != nil {
		return fmt.Errorf("query rate: %w", err)
	}
	rate := "<nil>"
	if report.Rate != nil {
		rate = fixedpoint.Format(report.Rate, fixedpoint.FeedDecimals)
	}
	fmt.Fprintf(a.Out, "rate:    %s\nupdated: %s\n", rate, report.UpdatedAt.UTC().Format(time.RFC3339))
	return nil
}
