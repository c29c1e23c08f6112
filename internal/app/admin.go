package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"rateoracle/internal/oracle"
)

// SetSourceOptions configure the source set command.
type SetSourceOptions struct {
	Caller        string
	Pair          string
	BaseDecimals  uint8
	QuoteDecimals uint8
	FeedID        string
	Inverse       bool
}

// SetMaxAgeOptions configure the source max-age command.
type SetMaxAgeOptions struct {
	Caller string
	Pair   string
	MaxAge time.Duration
}

// SetBoundsOptions configure the source bounds command. Bounds are human
// decimals; empty disables a side.
type SetBoundsOptions struct {
	Caller string
	Pair   string
	Min    string
	Max    string
}

// SetSource configures a pair and its mirror.
func (a *App) SetSource(ctx context.Context, opts SetSourceOptions) error {
	caller, err := parseCaller(opts.Caller)
	if err != nil {
		return err
	}
	pair, err := oracle.ParsePair(opts.Pair)
	if err != nil {
		return err
	}
	feedID, err := oracle.ParseFeedID(opts.FeedID)
	if err != nil {
		return err
	}

	return a.withRegistry(ctx, func(r *oracle.Registry) error {
		if err := r.SetSource(ctx, caller, pair.Base, pair.Quote, opts.BaseDecimals, opts.QuoteDecimals, feedID, opts.Inverse); err != nil {
			return err
		}
		return a.printSources(r, pair, pair.Mirror())
	})
}

// SetMaxAge sets a pair's staleness ceiling.
func (a *App) SetMaxAge(ctx context.Context, opts SetMaxAgeOptions) error {
	caller, err := parseCaller(opts.Caller)
	if err != nil {
		return err
	}
	pair, err := oracle.ParsePair(opts.Pair)
	if err != nil {
		return err
	}

	return a.withRegistry(ctx, func(r *oracle.Registry) error {
		if err := r.SetMaxAge(ctx, caller, pair.Base, pair.Quote, opts.MaxAge); err != nil {
			return err
		}
		return a.printSources(r, pair)
	})
}

// SetBounds sets a pair's price bounds.
func (a *App) SetBounds(ctx context.Context, opts SetBoundsOptions) error {
	caller, err := parseCaller(opts.Caller)
	if err != nil {
		return err
	}
	pair, err := oracle.ParsePair(opts.Pair)
	if err != nil {
		return err
	}
	minPrice, err := parseOptionalDecimal(opts.Min)
	if err != nil {
		return fmt.Errorf("--min: %w", err)
	}
	maxPrice, err := parseOptionalDecimal(opts.Max)
	if err != nil {
		return fmt.Errorf("--max: %w", err)
	}

	return a.withRegistry(ctx, func(r *oracle.Registry) error {
		if err := r.SetBounds(ctx, caller, pair.Base, pair.Quote, minPrice, maxPrice); err != nil {
			return err
		}
		return a.printSources(r, pair)
	})
}

// Status prints the configuration of the given pairs, or every pair when none are given.
func (a *App) Status(ctx context.Context, pairs []string) error {
	parsed := make([]oracle.Pair, 0, len(pairs))
	for _, p := range pairs {
		pair, err := oracle.ParsePair(p)
		if err != nil {
			return err
		}
		parsed = append(parsed, pair)
	}

	return a.withRegistry(ctx, func(r *oracle.Registry) error {
		if len(parsed) == 0 {
			parsed = r.Pairs()
		}
		if len(parsed) == 0 {
			fmt.Fprintln(a.Out, "no sources configured")
			return nil
		}
		return a.printSources(r, parsed...)
	})
}

func (a *App) withRegistry(ctx context.Context, fn func(r *oracle.Registry) error) error {
	registry, _, closeStore, err := a.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(registry)
}

func (a *App) printSources(r *oracle.Registry, pairs ...oracle.Pair) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Pair\tConfigured\tFeed\tDecimals\tInverse\tMaxAge\tMin\tMax")

	for _, pair := range pairs {
		status := r.ConfigStatus(pair.Base, pair.Quote)
		src, ok := r.Source(pair.Base, pair.Quote)
		if !ok {
			fmt.Fprintf(writer, "%s\t%t\t-\t-\t-\t-\t-\t-\n", pair, status.Configured)
			continue
		}
		maxAge := "off"
		if status.HasStaleness {
			maxAge = src.MaxAge.String()
		}
		fmt.Fprintf(
			writer,
			"%s\t%t\t%s\t%d/%d\t%t\t%s\t%s\t%s\n",
			pair,
			status.Configured,
			src.FeedID.Hex(),
			src.BaseDecimals,
			src.QuoteDecimals,
			src.Inverse,
			maxAge,
			formatBound(src.MinPrice),
			formatBound(src.MaxPrice),
		)
	}

	return writer.Flush()
}
