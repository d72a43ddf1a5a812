package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxPriceScale bounds the number of decimal places a price may carry on
// the wire.
const MaxPriceScale = 18

// maxPriceLen bounds the textual form of a price. It also bounds the
// coefficient to maxPriceLen digits, which lets ParsePrice reject
// extreme exponents before any rescaling.
const maxPriceLen = 64

// maxTickDigits is the number of decimal digits in math.MaxUint64.
const maxTickDigits = 20

var maxTicks = decimal.NewFromUint64(math.MaxUint64)

// ParsePrice converts a decimal string such as "101.25" into integer
// ticks at the given scale (101.25 at scale 2 is 10125). It rejects
// negative values and values with more precision than scale allows.
func ParsePrice(s string, scale int32) (uint64, error) {
	if len(s) > maxPriceLen {
		return 0, fmt.Errorf("%w: longer than %d characters", ErrInvalidPrice, maxPriceLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidPrice, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPrice)
	}
	if d.IsZero() {
		return 0, nil
	}
	// ticks = coefficient * 10^exp.
	exp := int64(d.Exponent()) + int64(scale)
	if exp+int64(d.NumDigits()) > maxTickDigits {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidPrice)
	}
	if exp < -maxPriceLen {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidPrice, scale)
	}
	ticks := d.Shift(scale)
	if !ticks.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidPrice, scale)
	}
	if ticks.GreaterThan(maxTicks) {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidPrice)
	}
	return ticks.BigInt().Uint64(), nil
}

// FormatPrice renders integer ticks as a fixed-point decimal string.
func FormatPrice(ticks uint64, scale int32) string {
	return decimal.NewFromUint64(ticks).Shift(-scale).StringFixed(scale)
}
