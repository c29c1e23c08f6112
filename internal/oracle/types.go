// Package oracle implements the rate adapter: a registry of per-pair feed
// sources and the pricing pipeline that turns 24-decimal feed rates into
// checked 18-decimal prices.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// AssetID names one side of a pair.
type AssetID string

// Pair is an ordered (base, quote) pair. (A, B) and (B, A) are distinct.
type Pair struct {
	Base  AssetID
	Quote AssetID
}

// String renders BASE/QUOTE.
func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// Mirror returns the (quote, base) pair.
func (p Pair) Mirror() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// ParsePair parses the BASE/QUOTE form.
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(strings.TrimSpace(s), "/")
	base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
	if !ok || base == "" || quote == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected BASE/QUOTE", s)
	}
	return Pair{Base: AssetID(base), Quote: AssetID(quote)}, nil
}

// FeedID is the opaque 32-byte handle naming one upstream rate feed.
// The zero value means "unconfigured".
type FeedID [common.HashLength]byte

// IsZero reports whether the id is unset.
func (id FeedID) IsZero() bool { return id == FeedID{} }

// Hex renders the id as 0x-prefixed hex.
func (id FeedID) Hex() string { return common.Hash(id).Hex() }

func (id FeedID) String() string { return id.Hex() }

// ParseFeedID accepts 0x-prefixed hex of at most 32 bytes (left padded) or any
// other label, which is hashed with keccak256. An empty string yields the zero id.
func ParseFeedID(s string) (FeedID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FeedID{}, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hexutil.Decode("0x" + s[2:])
		if err != nil {
			return FeedID{}, fmt.Errorf("decode feed id %q: %w", s, err)
		}
		if len(raw) > common.HashLength {
			return FeedID{}, errors.New("feed id longer than 32 bytes")
		}
		return FeedID(common.BytesToHash(raw)), nil
	}
	return FeedID(crypto.Keccak256Hash([]byte(s))), nil
}

// Source is the configuration of one ordered pair.
type Source struct {
	Base          AssetID
	Quote         AssetID
	BaseDecimals  uint8
	QuoteDecimals uint8
	FeedID        FeedID
	Inverse       bool
	// MaxAge is the staleness ceiling; zero disables the check.
	MaxAge time.Duration
	// MinPrice and MaxPrice are 18-decimal bounds; zero disables a side.
	MinPrice uint256.Int
	MaxPrice uint256.Int
}

// Pair returns the source's ordered pair.
func (s Source) Pair() Pair { return Pair{Base: s.Base, Quote: s.Quote} }

// Configured reports whether the source names a feed.
func (s Source) Configured() bool { return !s.FeedID.IsZero() }

// Status summarises a pair's configuration.
type Status struct {
	Configured   bool
	HasStaleness bool
	HasBounds    bool
}

// Status reports which checks the source enables.
func (s Source) Status() Status {
	if !s.Configured() {
		return Status{}
	}
	return Status{
		Configured:   true,
		HasStaleness: s.MaxAge > 0,
		HasBounds:    !s.MinPrice.IsZero() && !s.MaxPrice.IsZero(),
	}
}

// Report is one rate observation returned by a feed.
type Report struct {
	// Rate is in 24-decimal fixed point.
	Rate      *uint256.Int
	UpdatedAt time.Time
}

// FeedClient abstracts the upstream rate source.
type FeedClient interface {
	QueryRate(ctx context.Context, id FeedID) (Report, error)
	QueryReportCount(ctx context.Context, id FeedID) (uint64, error)
}

// SourceStore persists registry entries. SaveSources must write all given
// sources atomically. UpdateSource runs mutate against the stored entry while
// holding it locked and persists only MaxAge, MinPrice and MaxPrice; a missing
// entry yields ErrUnconfiguredPair and an error from mutate aborts the write.
type SourceStore interface {
	SaveSources(ctx context.Context, sources ...Source) error
	LoadSources(ctx context.Context) ([]Source, error)
	LoadSource(ctx context.Context, pair Pair) (Source, bool, error)
	UpdateSource(ctx context.Context, pair Pair, mutate func(*Source) error) (Source, error)
}

// Clock supplies the current time to the pricing pipeline.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
