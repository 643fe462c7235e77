package service

import (
	"testing"
	"time"

	"marketplace/config"
	"marketplace/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletEarningsCalculator(t *testing.T) {
	h := newHarness(t)
	h.seedSeller("seller-1", "0")
	calc, err := NewWalletEarningsCalculator(h.wallets, config.Default().Settlement)
	require.NoError(t, err)

	h.setNow(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	_, _, err = h.ledger.Credit(h.ctx, mut("seller-1", "8000.00", domain.CategorySale, "order-1"))
	require.NoError(t, err)
	_, _, err = h.ledger.CreditPending(h.ctx, mut("seller-1", "4000.00", domain.CategorySale, "order-2"))
	require.NoError(t, err)
	_, _, err = h.ledger.Debit(h.ctx, mut("seller-1", "2000.00", domain.CategoryRefund, "refund-1"))
	require.NoError(t, err)
	_, _, err = h.ledger.Credit(h.ctx, mut("seller-1", "20.00", domain.CategoryAdjustment, "adj-1"))
	require.NoError(t, err)
	_, _, err = h.ledger.Debit(h.ctx, mut("seller-1", "30.00", domain.CategoryAdjustment, "adj-2"))
	require.NoError(t, err)

	// outside the period
	h.setNow(time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC))
	_, _, err = h.ledger.Credit(h.ctx, mut("seller-1", "500.00", domain.CategorySale, "order-3"))
	require.NoError(t, err)

	b, err := calc.Calculate(h.ctx, "seller-1", "INR", day(2024, 1, 1), day(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, b.Gross.Equal(d("10000.00")), b.Gross.String())
	assert.True(t, b.Commission.Equal(d("500.00")), b.Commission.String())
	assert.True(t, b.PlatformFee.Equal(d("100.00")), b.PlatformFee.String())
	assert.True(t, b.Tax.Equal(d("108.00")), b.Tax.String())
	assert.True(t, b.Adjustment.Equal(d("-10.00")), b.Adjustment.String())
	assert.True(t, b.Net.Equal(d("9282.00")), b.Net.String())
	assert.True(t, b.Net.Equal(b.ExpectedNet()))
}

func TestWalletEarningsCalculatorEmptyPeriod(t *testing.T) {
	h := newHarness(t)
	h.seedSeller("seller-1", "100.00")
	calc, err := NewWalletEarningsCalculator(h.wallets, config.Default().Settlement)
	require.NoError(t, err)

	b, err := calc.Calculate(h.ctx, "seller-1", "", day(2023, 1, 1), day(2023, 2, 1))
	require.NoError(t, err)
	assert.True(t, b.Gross.IsZero())
	assert.True(t, b.Net.IsZero())

	_, err = calc.Calculate(h.ctx, "seller-1", "USD", day(2023, 1, 1), day(2023, 2, 1))
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.CodeCurrencyMismatch, domain.ErrorCode(err))

	_, err = calc.Calculate(h.ctx, "nobody", "INR", day(2023, 1, 1), day(2023, 2, 1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewWalletEarningsCalculatorRejectsBadRates(t *testing.T) {
	cfg := config.Default().Settlement
	cfg.TaxRate = "1.5"
	_, err := NewWalletEarningsCalculator(nil, cfg)
	require.Error(t, err)

	cfg = config.Default().Settlement
	cfg.CommissionRate = "five percent"
	_, err = NewWalletEarningsCalculator(nil, cfg)
	require.Error(t, err)
}
