package models

import (
	"errors"
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrImmutableTransaction = errors.New("wallet transactions are append-only")

// WalletTransaction is one immutable ledger entry. BalanceBefore and BalanceAfter
// refer to the balance named by Bucket.
type WalletTransaction struct {
	ID            string                 `gorm:"primaryKey;size:36" json:"id"`
	WalletID      string                 `gorm:"size:36;not null;index" json:"wallet_id"`
	SellerID      string                 `gorm:"size:36;not null;index" json:"seller_id"`
	TransactionID string                 `gorm:"size:128;uniqueIndex;not null" json:"transaction_id"`
	Type          domain.TransactionType `gorm:"size:10;not null" json:"type"`
	Operation     domain.WalletOperation `gorm:"size:24;not null" json:"operation"`
	Category      domain.Category        `gorm:"size:20;not null;index" json:"category"`
	Bucket        domain.Bucket          `gorm:"size:12;not null" json:"bucket"`
	Amount        decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency      string                 `gorm:"size:3;not null" json:"currency"`
	BalanceBefore decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal        `gorm:"type:decimal(18,2);not null" json:"balance_after"`
	Description   string                 `gorm:"size:500" json:"description"`
	Reference     string                 `gorm:"size:128;index" json:"reference,omitempty"` // order, payment or settlement id
	ProcessedAt   time.Time              `gorm:"not null;index" json:"processed_at"`
	CreatedAt     time.Time              `json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *WalletTransaction) BeforeUpdate(tx *gorm.DB) error { return ErrImmutableTransaction }
func (t *WalletTransaction) BeforeDelete(tx *gorm.DB) error { return ErrImmutableTransaction }
