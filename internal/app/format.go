package app

import (
	"strings"

	"github.com/holiman/uint256"

	"rateoracle/internal/fixedpoint"
)

func parseOptionalDecimal(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	return fixedpoint.Parse(raw, fixedpoint.Decimals)
}

func formatBound(v uint256.Int) string {
	if v.IsZero() {
		return "off"
	}
	return fixedpoint.Format(&v, fixedpoint.Decimals)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
