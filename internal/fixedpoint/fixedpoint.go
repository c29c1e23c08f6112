// Package fixedpoint holds the integer fixed-point conventions shared by the
// upstream feed (24 decimals) and the adapter output (18 decimals).
package fixedpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// FeedDecimals is the precision of rates reported by the upstream feed.
	FeedDecimals = 24
	// Decimals is the precision of every adapter output, bound and amount.
	Decimals = 18
)

var (
	unit          = uint256.NewInt(1_000_000_000_000_000_000)
	unitSquared   = new(uint256.Int).Mul(unit, unit)
	feedUnit      = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(FeedDecimals))
	rescaleFactor = new(uint256.Int).Div(feedUnit, unit)
)

// Unit returns 1.0 in 18-decimal fixed point.
func Unit() *uint256.Int { return unit.Clone() }

// FeedUnit returns 1.0 in the feed's 24-decimal fixed point.
func FeedUnit() *uint256.Int { return feedUnit.Clone() }

// Rescale converts a 24-decimal feed rate into 18-decimal precision.
// The division truncates; anything below 10^-18 is dropped.
func Rescale(raw *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(raw, rescaleFactor)
}

// Invert returns UNIT*UNIT/rate. ok is false when rate is zero.
func Invert(rate *uint256.Int) (*uint256.Int, bool) {
	if rate.IsZero() {
		return nil, false
	}
	return new(uint256.Int).Div(unitSquared, rate), true
}

// MulUnit returns amount*rate/UNIT. ok is false when the product overflows 256 bits.
func MulUnit(amount, rate *uint256.Int) (*uint256.Int, bool) {
	product, overflow := new(uint256.Int).MulOverflow(amount, rate)
	if overflow {
		return nil, false
	}
	return product.Div(product, unit), true
}

// ParseInt parses a base-10 integer already expressed in raw fixed-point units.
func ParseInt(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse integer %q: %w", s, err)
	}
	return v, nil
}

// Parse converts a human decimal such as "1.25" into raw units of the given precision.
func Parse(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", s)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("value %q exceeds %d decimal places", s, decimals)
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("value %q overflows 256 bits", s)
	}
	return v, nil
}

// Format renders raw units of the given precision as a decimal string.
func Format(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}
