package payout

import (
	"marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

// ToMinor converts to the provider's integer subunit, rejecting sub-unit precision.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, &Error{Code: CodeInvalidAmount, Message: "payout amount must be positive"}
	}
	units, err := money.ToMinorUnits(amount, currency)
	if err != nil {
		return 0, &Error{Code: CodeInvalidAmount, Message: err.Error()}
	}
	return units, nil
}

func FromMinor(units int64, currency string) decimal.Decimal {
	return money.FromMinorUnits(units, currency)
}
