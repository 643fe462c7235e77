package models

import (
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SellerAccount is owned by seller onboarding; the settlement engine reads it and
// writes only the payout gateway linkage.
type SellerAccount struct {
	ID                   string     `gorm:"primaryKey;size:36" json:"id"`
	SellerID             string     `gorm:"size:36;uniqueIndex;not null" json:"seller_id"`
	BusinessName         string     `gorm:"size:255;not null" json:"business_name"`
	Email                string     `gorm:"size:255" json:"email"`
	Phone                string     `gorm:"size:20" json:"phone"`
	Status               string     `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	KYCStatus            string     `gorm:"size:20;not null;default:'PENDING'" json:"kyc_status"`
	BankAccountHolder    string     `gorm:"size:255" json:"bank_account_holder"`
	BankAccountNumber    string     `gorm:"size:34" json:"-"`
	BankIFSC             string     `gorm:"size:11" json:"bank_ifsc"`
	GatewayContactID     *string    `gorm:"size:64" json:"gateway_contact_id,omitempty"`
	GatewayFundAccountID *string    `gorm:"size:64" json:"gateway_fund_account_id,omitempty"`
	GatewayLinkedAt      *time.Time `json:"gateway_linked_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (SellerAccount) TableName() string {
	return "seller_accounts"
}

func (a *SellerAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *SellerAccount) IsActive() bool   { return a.Status == domain.SellerStatusActive }
func (a *SellerAccount) IsVerified() bool { return a.KYCStatus == domain.KYCVerified }

func (a *SellerAccount) IsGatewayLinked() bool {
	return a.GatewayFundAccountID != nil && *a.GatewayFundAccountID != ""
}

func (a *SellerAccount) FundAccountRef() string {
	if a.GatewayFundAccountID == nil {
		return ""
	}
	return *a.GatewayFundAccountID
}
