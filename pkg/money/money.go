// Package money holds fixed-point helpers shared by the ledger and settlement code.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places every stored amount carries.
const Scale = 2

// Tolerance is the largest difference accepted when checking that a breakdown reconciles.
var Tolerance = decimal.New(1, -Scale)

// minorUnitExponent lists currencies whose minor unit is not 1/100.
var minorUnitExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func HasAtMostTwoDecimals(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// WithinTolerance reports whether |a-b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Net computes gross - commission - platformFee - tax + adjustment.
func Net(gross, commission, platformFee, tax, adjustment decimal.Decimal) decimal.Decimal {
	return gross.Sub(commission).Sub(platformFee).Sub(tax).Add(adjustment)
}

func exponent(currency string) int32 {
	if e, ok := minorUnitExponent[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the currency's smallest subunit.
// Amounts with more precision than the subunit are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	e := exponent(currency)
	scaled := amount.Shift(e)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount.String(), currency)
	}
	return scaled.IntPart(), nil
}

func FromMinorUnits(units int64, currency string) decimal.Decimal {
	return decimal.New(units, -exponent(currency))
}
