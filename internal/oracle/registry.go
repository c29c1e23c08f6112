package oracle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Registry owns the per-pair source configuration. Every operation runs under
// the registry lock, so each one either commits fully or not at all. With a
// store the database is authoritative and the map is a cache of it.
type Registry struct {
	mu      sync.RWMutex
	sources map[Pair]Source
	// gen counts local commits; Load drops snapshots older than a commit.
	gen     uint64
	auth    Authorizer
	store   SourceStore
	logger  zerolog.Logger
}

// NewRegistry builds an empty registry. A nil store keeps configuration in
// memory only; a nil authorizer rejects every mutation.
func NewRegistry(auth Authorizer, store SourceStore, logger zerolog.Logger) *Registry {
	return &Registry{
		sources: make(map[Pair]Source),
		auth:    auth,
		store:   store,
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Load replaces the in-memory state with the contents of the store.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	sources, err := r.store.LoadSources(ctx)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		// 读取期间本地已提交，快照可能旧于缓存
		r.logger.Debug().Msg("registry snapshot superseded by local commit")
		return nil
	}
	r.sources = make(map[Pair]Source, len(sources))
	for _, src := range sources {
		if !src.Configured() {
			continue
		}
		r.sources[src.Pair()] = src
	}
	r.logger.Debug().Int("sources", len(r.sources)).Msg("registry loaded")
	return nil
}

// SetSource replaces the (base, quote) entry and, when base != quote, its
// mirror. Both entries start with staleness and bounds disabled.
func (r *Registry) SetSource(ctx context.Context, caller common.Address, base, quote AssetID, baseDecimals, quoteDecimals uint8, feedID FeedID, inverse bool) error {
	if err := r.authorize(caller, OpSetSource); err != nil {
		return err
	}
	if feedID.IsZero() {
		return fmt.Errorf("set source %s/%s: %w", base, quote, ErrInvalidFeedID)
	}

	entries := []Source{{
		Base:          base,
		Quote:         quote,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		FeedID:        feedID,
		Inverse:       inverse,
	}}
	if base != quote {
		entries = append(entries, Source{
			Base:          quote,
			Quote:         base,
			BaseDecimals:  quoteDecimals,
			QuoteDecimals: baseDecimals,
			FeedID:        feedID,
			Inverse:       !inverse,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.commit(ctx, entries...); err != nil {
		return fmt.Errorf("set source %s/%s: %w", base, quote, err)
	}

	r.logger.Info().
		Str("pair", Pair{Base: base, Quote: quote}.String()).
		Str("feed_id", feedID.Hex()).
		Bool("inverse", inverse).
		Str("caller", caller.Hex()).
		Msg("source set")
	return nil
}

// SetMaxAge sets the staleness ceiling of a configured pair. Zero disables it;
// any other value must be a whole number of seconds.
func (r *Registry) SetMaxAge(ctx context.Context, caller common.Address, base, quote AssetID, maxAge time.Duration) error {
	if err := r.authorize(caller, OpSetMaxAge); err != nil {
		return err
	}
	pair := Pair{Base: base, Quote: quote}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.update(ctx, pair, func(src *Source) error {
		if maxAge < 0 || maxAge%time.Second != 0 {
			return ErrInvalidMaxAge
		}
		src.MaxAge = maxAge
		return nil
	})
	if err != nil {
		return fmt.Errorf("set max age %s: %w", pair, err)
	}

	r.logger.Info().Str("pair", pair.String()).Dur("max_age", maxAge).Str("caller", caller.Hex()).Msg("max age set")
	return nil
}

// SetBounds sets the price bounds of a configured pair. A nil or zero bound
// disables that side.
func (r *Registry) SetBounds(ctx context.Context, caller common.Address, base, quote AssetID, minPrice, maxPrice *uint256.Int) error {
	if err := r.authorize(caller, OpSetBounds); err != nil {
		return err
	}
	pair := Pair{Base: base, Quote: quote}

	var lo, hi uint256.Int
	if minPrice != nil {
		lo.Set(minPrice)
	}
	if maxPrice != nil {
		hi.Set(maxPrice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.update(ctx, pair, func(src *Source) error {
		if !lo.IsZero() && !hi.IsZero() && !lo.Lt(&hi) {
			return ErrInvalidBounds
		}
		src.MinPrice = lo
		src.MaxPrice = hi
		return nil
	})
	if err != nil {
		return fmt.Errorf("set bounds %s: %w", pair, err)
	}

	r.logger.Info().
		Str("pair", pair.String()).
		Str("min", lo.Dec()).
		Str("max", hi.Dec()).
		Str("caller", caller.Hex()).
		Msg("bounds set")
	return nil
}

// ConfigStatus reports whether the pair is configured and which checks are
// active, as of the last Load or Lookup.
func (r *Registry) ConfigStatus(base, quote AssetID) Status {
	src, ok := r.Source(base, quote)
	if !ok {
		return Status{}
	}
	return src.Status()
}

// Lookup returns the committed configuration of the pair. With a store it
// reads through to it, so commits made by other processes are visible, and
// refreshes the cached entry.
func (r *Registry) Lookup(ctx context.Context, base, quote AssetID) (Source, bool, error) {
	pair := Pair{Base: base, Quote: quote}
	if r.store == nil {
		src, ok := r.Source(base, quote)
		return src, ok, nil
	}

	src, ok, err := r.store.LoadSource(ctx, pair)
	if err != nil {
		return Source{}, false, fmt.Errorf("lookup %s: %w", pair, err)
	}

	r.mu.Lock()
	if ok && src.Configured() {
		r.sources[pair] = src
	} else {
		ok = false
		delete(r.sources, pair)
	}
	r.mu.Unlock()
	return src, ok, nil
}

// Source returns a copy of the cached configuration of the pair.
func (r *Registry) Source(base, quote AssetID) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[Pair{Base: base, Quote: quote}]
	return src, ok
}

// Sources lists every configured entry ordered by pair.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Base != out[j].Base {
			return out[i].Base < out[j].Base
		}
		return out[i].Quote < out[j].Quote
	})
	return out
}

// Pairs lists every configured pair ordered by base then quote.
func (r *Registry) Pairs() []Pair {
	sources := r.Sources()
	pairs := make([]Pair, len(sources))
	for i, src := range sources {
		pairs[i] = src.Pair()
	}
	return pairs
}

func (r *Registry) authorize(caller common.Address, op Operation) error {
	if r.auth == nil || !r.auth.Authorize(caller, op) {
		return fmt.Errorf("%s by %s: %w", op, caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// commit persists entries before publishing them; callers hold r.mu.
func (r *Registry) commit(ctx context.Context, entries ...Source) error {
	if r.store != nil {
		if err := r.store.SaveSources(ctx, entries...); err != nil {
			return fmt.Errorf("persist sources: %w", err)
		}
	}
	for _, src := range entries {
		r.sources[src.Pair()] = src
	}
	r.gen++
	return nil
}

// update applies mutate to the committed entry of pair; callers hold r.mu.
// With a store the read-modify-write runs inside one store transaction.
func (r *Registry) update(ctx context.Context, pair Pair, mutate func(*Source) error) (Source, error) {
	if r.store != nil {
		src, err := r.store.UpdateSource(ctx, pair, mutate)
		if err != nil {
			return Source{}, err
		}
		r.sources[pair] = src
		r.gen++
		return src, nil
	}

	src, ok := r.sources[pair]
	if !ok {
		return Source{}, ErrUnconfiguredPair
	}
	if err := mutate(&src); err != nil {
		return Source{}, err
	}
	r.sources[pair] = src
	r.gen++
	return src, nil
}
