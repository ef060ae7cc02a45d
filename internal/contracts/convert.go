package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is used for tokens configured without a decimals count and
// for readable conversions that name no token.
const DefaultDecimals int32 = 18

var (
	ErrPrecision        = errors.New("quantity has more fractional digits than the token supports")
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

// ToProcessable converts a human readable quantity into the integer the
// contract expects: quantity * 10^decimals.
func ToProcessable(quantity decimal.Decimal, decimals int32) (*big.Int, error) {
	if quantity.IsNegative() {
		return nil, fmt.Errorf("%s: %w", quantity, ErrNegativeQuantity)
	}
	shifted := quantity.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%s with %d decimals: %w", quantity, decimals, ErrPrecision)
	}
	return shifted.BigInt(), nil
}

// ToReadable converts a contract integer back into a human readable quantity.
func ToReadable(quantity *big.Int, decimals int32) decimal.Decimal {
	if quantity == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(quantity, -decimals)
}
