package storage

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// addressText normalizes an address for storage. All address columns hold
// lowercase hex so equality comparisons in SQL stay trivial.
func addressText(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// parseBigInt converts a NUMERIC column scanned as text back into a big.Int.
func parseBigInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return value, nil
}

// parseDecimal converts a NUMERIC column scanned as text back into a decimal.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value %q: %w", s, err)
	}
	return value, nil
}

// bigIntText renders a big.Int for a NUMERIC parameter. Nil maps to zero.
func bigIntText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
