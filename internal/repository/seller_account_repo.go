package repository

import (
	"context"
	"time"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

type SellerAccountRepository struct {
	db *gorm.DB
}

func NewSellerAccountRepository(db *gorm.DB) *SellerAccountRepository {
	return &SellerAccountRepository{db: db}
}

func (r *SellerAccountRepository) Create(ctx context.Context, a *models.SellerAccount) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *SellerAccountRepository) GetByID(ctx context.Context, id string) (*models.SellerAccount, error) {
	var a models.SellerAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err, "seller account", id)
	}
	return &a, nil
}

func (r *SellerAccountRepository) GetBySellerID(ctx context.Context, sellerID string) (*models.SellerAccount, error) {
	var a models.SellerAccount
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&a).Error; err != nil {
		return nil, notFound(err, "seller account", sellerID)
	}
	return &a, nil
}

func (r *SellerAccountRepository) UpdateGatewayLink(ctx context.Context, id, contactID, fundAccountID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.SellerAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"gateway_contact_id":      contactID,
		"gateway_fund_account_id": fundAccountID,
		"gateway_linked_at":       at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "seller account", id)
	}
	return nil
}
