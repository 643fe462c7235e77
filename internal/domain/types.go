package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AmountBreakdown struct {
	Gross       decimal.Decimal `json:"gross"`
	Commission  decimal.Decimal `json:"commission"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Adjustment  decimal.Decimal `json:"adjustment"` // may be negative
	Net         decimal.Decimal `json:"net"`
}

// ExpectedNet is gross - commission - platformFee - tax + adjustment.
func (b AmountBreakdown) ExpectedNet() decimal.Decimal {
	return b.Gross.Sub(b.Commission).Sub(b.PlatformFee).Sub(b.Tax).Add(b.Adjustment)
}

type CreateSettlementRequest struct {
	SellerID       string     `json:"seller_id"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	SettlementDate *time.Time `json:"settlement_date,omitempty"`
	Currency       string     `json:"currency"`
	Notes          string     `json:"notes,omitempty"`
	AmountBreakdown
}

type BulkSettlementRequest struct {
	SellerIDs   []string  `json:"seller_ids"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	BatchSize   int       `json:"batch_size"`
	Currency    string    `json:"currency,omitempty"`
}

type SettlementFilter struct {
	SellerID string
	Statuses []SettlementStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type StatusSummary struct {
	Status   SettlementStatus `json:"status"`
	Count    int64            `json:"count"`
	TotalNet decimal.Decimal  `json:"total_net"`
}

type SettlementSummary struct {
	From       *time.Time      `json:"from,omitempty"`
	To         *time.Time      `json:"to,omitempty"`
	ByStatus   []StatusSummary `json:"by_status"`
	TotalCount int64           `json:"total_count"`
	TotalNet   decimal.Decimal `json:"total_net"`
}

// WalletMutation is the input to one ledger operation.
type WalletMutation struct {
	SellerID      string
	Amount        decimal.Decimal
	Category      Category
	TransactionID string
	Description   string
	Reference     string
	Actor         string
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate normalises page and page size and returns the row offset.
func Paginate(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}
