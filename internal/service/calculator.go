package service

import (
	"context"
	"fmt"
	"time"

	"marketplace/config"
	"marketplace/internal/domain"
	"marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

// WalletEarningsCalculator derives a settlement breakdown from the seller's ledger:
// sales less refunds, then commission and platform fee on gross and tax on those fees.
type WalletEarningsCalculator struct {
	wallets        WalletStore
	commissionRate decimal.Decimal
	feeRate        decimal.Decimal
	taxRate        decimal.Decimal
}

func NewWalletEarningsCalculator(wallets WalletStore, cfg config.SettlementConfig) (*WalletEarningsCalculator, error) {
	rates := make([]decimal.Decimal, 3)
	for i, raw := range []string{cfg.CommissionRate, cfg.PlatformFeeRate, cfg.TaxRate} {
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid rate %q: %w", raw, err)
		}
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("rate %q out of range", raw)
		}
		rates[i] = r
	}
	return &WalletEarningsCalculator{
		wallets:        wallets,
		commissionRate: rates[0],
		feeRate:        rates[1],
		taxRate:        rates[2],
	}, nil
}

var (
	creditOps = []domain.WalletOperation{domain.OpCredit, domain.OpCreditPending}
	debitOps  = []domain.WalletOperation{domain.OpDebit}
)

func (c *WalletEarningsCalculator) Calculate(ctx context.Context, sellerID, currency string, start, end time.Time) (domain.AmountBreakdown, error) {
	wallet, err := c.wallets.GetBySellerID(ctx, sellerID)
	if err != nil {
		return domain.AmountBreakdown{}, err
	}
	if currency != "" && wallet.Currency != currency {
		return domain.AmountBreakdown{}, domain.NewValidationError(domain.CodeCurrencyMismatch, "currency",
			"wallet currency is %s, batch is %s", wallet.Currency, currency)
	}

	sum := func(cat domain.Category, ops []domain.WalletOperation) (decimal.Decimal, error) {
		return c.wallets.SumAmounts(ctx, sellerID, cat, ops, start, end)
	}
	sales, err := sum(domain.CategorySale, creditOps)
	if err != nil {
		return domain.AmountBreakdown{}, err
	}
	refunds, err := sum(domain.CategoryRefund, debitOps)
	if err != nil {
		return domain.AmountBreakdown{}, err
	}
	adjIn, err := sum(domain.CategoryAdjustment, creditOps)
	if err != nil {
		return domain.AmountBreakdown{}, err
	}
	adjOut, err := sum(domain.CategoryAdjustment, debitOps)
	if err != nil {
		return domain.AmountBreakdown{}, err
	}

	gross := sales.Sub(refunds)
	if gross.IsNegative() {
		gross = decimal.Zero
	}
	b := domain.AmountBreakdown{
		Gross:       money.Round2(gross),
		Commission:  money.Round2(gross.Mul(c.commissionRate)),
		PlatformFee: money.Round2(gross.Mul(c.feeRate)),
		Adjustment:  money.Round2(adjIn.Sub(adjOut)),
	}
	b.Tax = money.Round2(b.Commission.Add(b.PlatformFee).Mul(c.taxRate))
	b.Net = money.Round2(b.ExpectedNet())
	return b, nil
}
