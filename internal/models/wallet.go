package models

import (
	"fmt"
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellerWallet caches the fold of the seller's wallet transactions.
// TotalBalance is stored and always equals available + pending + reserved.
type SellerWallet struct {
	ID                   string          `gorm:"primaryKey;size:36" json:"id"`
	SellerID             string          `gorm:"size:36;uniqueIndex;not null" json:"seller_id"`
	Currency             string          `gorm:"size:3;not null" json:"currency"`
	AvailableBalance     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"available_balance"`
	PendingBalance       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"pending_balance"`
	ReservedBalance      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"reserved_balance"`
	TotalBalance         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_balance"`
	LastSettlementAt     *time.Time      `json:"last_settlement_at,omitempty"`
	LastSettlementAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"last_settlement_amount"`
	Version              int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (SellerWallet) TableName() string {
	return "seller_wallets"
}

func (w *SellerWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Version == 0 {
		w.Version = 1
	}
	w.recomputeTotal()
	return nil
}

func (w *SellerWallet) recomputeTotal() {
	w.TotalBalance = w.AvailableBalance.Add(w.PendingBalance).Add(w.ReservedBalance)
}

// SettleableAmount is what a settlement may draw on right now.
func (w *SellerWallet) SettleableAmount() decimal.Decimal {
	return w.AvailableBalance
}

func (w *SellerWallet) CheckInvariants() error {
	for name, v := range map[string]decimal.Decimal{
		"available": w.AvailableBalance,
		"pending":   w.PendingBalance,
		"reserved":  w.ReservedBalance,
	} {
		if v.IsNegative() {
			return fmt.Errorf("wallet %s: negative %s balance %s", w.ID, name, v.String())
		}
	}
	if !w.TotalBalance.Equal(w.AvailableBalance.Add(w.PendingBalance).Add(w.ReservedBalance)) {
		return fmt.Errorf("wallet %s: total %s does not match its buckets", w.ID, w.TotalBalance.String())
	}
	return nil
}

// Apply performs op in memory and returns the unsaved ledger entry describing it.
// On error the wallet is unchanged.
func (w *SellerWallet) Apply(op domain.WalletOperation, amount decimal.Decimal) (*WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "amount", "amount must be greater than zero")
	}
	txn := &WalletTransaction{
		WalletID:  w.ID,
		SellerID:  w.SellerID,
		Operation: op,
		Amount:    amount,
		Currency:  w.Currency,
	}
	switch op {
	case domain.OpCredit:
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionCredit, domain.BucketAvailable, w.AvailableBalance
		w.AvailableBalance = w.AvailableBalance.Add(amount)
		txn.BalanceAfter = w.AvailableBalance
	case domain.OpCreditPending:
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionCredit, domain.BucketPending, w.PendingBalance
		w.PendingBalance = w.PendingBalance.Add(amount)
		txn.BalanceAfter = w.PendingBalance
	case domain.OpDebit:
		if w.AvailableBalance.LessThan(amount) {
			return nil, &domain.InsufficientBalanceError{Bucket: domain.BucketAvailable, Available: w.AvailableBalance, Requested: amount}
		}
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionDebit, domain.BucketAvailable, w.AvailableBalance
		w.AvailableBalance = w.AvailableBalance.Sub(amount)
		txn.BalanceAfter = w.AvailableBalance
	case domain.OpReserve:
		if w.AvailableBalance.LessThan(amount) {
			return nil, &domain.InsufficientBalanceError{Bucket: domain.BucketAvailable, Available: w.AvailableBalance, Requested: amount}
		}
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionDebit, domain.BucketAvailable, w.AvailableBalance
		w.AvailableBalance = w.AvailableBalance.Sub(amount)
		w.ReservedBalance = w.ReservedBalance.Add(amount)
		txn.BalanceAfter = w.AvailableBalance
	case domain.OpRelease:
		if w.ReservedBalance.LessThan(amount) {
			return nil, &domain.InvalidStateError{Entity: "wallet", ID: w.ID, State: "reserved=" + w.ReservedBalance.StringFixed(2), Message: "release exceeds reserved balance"}
		}
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionCredit, domain.BucketAvailable, w.AvailableBalance
		w.ReservedBalance = w.ReservedBalance.Sub(amount)
		w.AvailableBalance = w.AvailableBalance.Add(amount)
		txn.BalanceAfter = w.AvailableBalance
	case domain.OpMoveToAvailable:
		if w.PendingBalance.LessThan(amount) {
			return nil, &domain.InsufficientBalanceError{Bucket: domain.BucketPending, Available: w.PendingBalance, Requested: amount}
		}
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionCredit, domain.BucketAvailable, w.AvailableBalance
		w.PendingBalance = w.PendingBalance.Sub(amount)
		w.AvailableBalance = w.AvailableBalance.Add(amount)
		txn.BalanceAfter = w.AvailableBalance
	case domain.OpSettleReserved:
		if w.ReservedBalance.LessThan(amount) {
			return nil, &domain.InvalidStateError{Entity: "wallet", ID: w.ID, State: "reserved=" + w.ReservedBalance.StringFixed(2), Message: "settlement exceeds reserved balance"}
		}
		txn.Type, txn.Bucket, txn.BalanceBefore = domain.TransactionDebit, domain.BucketReserved, w.ReservedBalance
		w.ReservedBalance = w.ReservedBalance.Sub(amount)
		txn.BalanceAfter = w.ReservedBalance
	default:
		return nil, fmt.Errorf("unknown wallet operation %q", op)
	}
	w.recomputeTotal()
	w.Version++
	return txn, nil
}
