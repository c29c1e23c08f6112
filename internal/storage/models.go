package storage

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"rateoracle/internal/oracle"
)

// sourceRow mirrors one oracle_sources row in its column encoding.
type sourceRow struct {
	BaseAsset     string
	QuoteAsset    string
	BaseDecimals  int16
	QuoteDecimals int16
	FeedID        []byte
	Inverse       bool
	MaxAgeSeconds int64
	MinPrice      string
	MaxPrice      string
}

func encodeSource(src oracle.Source) sourceRow {
	return sourceRow{
		BaseAsset:     string(src.Base),
		QuoteAsset:    string(src.Quote),
		BaseDecimals:  int16(src.BaseDecimals),
		QuoteDecimals: int16(src.QuoteDecimals),
		FeedID:        src.FeedID[:],
		Inverse:       src.Inverse,
		MaxAgeSeconds: int64(src.MaxAge / time.Second),
		MinPrice:      src.MinPrice.Dec(),
		MaxPrice:      src.MaxPrice.Dec(),
	}
}

func decodeSource(row sourceRow) (oracle.Source, error) {
	if len(row.FeedID) != len(oracle.FeedID{}) {
		return oracle.Source{}, fmt.Errorf("feed id for %s/%s has %d bytes", row.BaseAsset, row.QuoteAsset, len(row.FeedID))
	}
	if row.BaseDecimals < 0 || row.BaseDecimals > 255 || row.QuoteDecimals < 0 || row.QuoteDecimals > 255 {
		return oracle.Source{}, fmt.Errorf("decimals out of range for %s/%s", row.BaseAsset, row.QuoteAsset)
	}
	if row.MaxAgeSeconds < 0 {
		return oracle.Source{}, fmt.Errorf("negative max age for %s/%s", row.BaseAsset, row.QuoteAsset)
	}

	minPrice, err := uint256.FromDecimal(row.MinPrice)
	if err != nil {
		return oracle.Source{}, fmt.Errorf("parse min price: %w", err)
	}
	maxPrice, err := uint256.FromDecimal(row.MaxPrice)
	if err != nil {
		return oracle.Source{}, fmt.Errorf("parse max price: %w", err)
	}

	src := oracle.Source{
		Base:          oracle.AssetID(row.BaseAsset),
		Quote:         oracle.AssetID(row.QuoteAsset),
		BaseDecimals:  uint8(row.BaseDecimals),
		QuoteDecimals: uint8(row.QuoteDecimals),
		Inverse:       row.Inverse,
		MaxAge:        time.Duration(row.MaxAgeSeconds) * time.Second,
		MinPrice:      *minPrice,
		MaxPrice:      *maxPrice,
	}
	copy(src.FeedID[:], row.FeedID)
	return src, nil
}
