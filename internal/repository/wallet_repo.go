package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WalletRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db, now: utcNow}
}

func (r *WalletRepository) WithClock(now func() time.Time) *WalletRepository {
	r.now = now
	return r
}

func (r *WalletRepository) GetBySellerID(ctx context.Context, sellerID string) (*models.SellerWallet, error) {
	var w models.SellerWallet
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&w).Error; err != nil {
		return nil, notFound(err, "wallet", sellerID)
	}
	return &w, nil
}

func (r *WalletRepository) GetOrCreate(ctx context.Context, sellerID, currency string) (*models.SellerWallet, error) {
	w, err := r.GetBySellerID(ctx, sellerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	w = &models.SellerWallet{SellerID: sellerID, Currency: strings.ToUpper(currency)}
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		if isDuplicateKey(err) {
			return r.GetBySellerID(ctx, sellerID)
		}
		return nil, err
	}
	return w, nil
}

// ApplyMutation performs one ledger operation under an exclusive row lock on the wallet.
// The balance update and the appended transaction commit together or not at all.
// A transaction id that was already applied is rejected with DUPLICATE_TRANSACTION.
func (r *WalletRepository) ApplyMutation(ctx context.Context, op domain.WalletOperation, m domain.WalletMutation, hooks ...func(tx *gorm.DB, w *models.SellerWallet) error) (*models.SellerWallet, *models.WalletTransaction, error) {
	var (
		wallet models.SellerWallet
		txn    *models.WalletTransaction
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("seller_id = ?", m.SellerID).
			First(&wallet).Error; err != nil {
			return notFound(err, "wallet", m.SellerID)
		}

		var seen int64
		if err := tx.Model(&models.WalletTransaction{}).Where("transaction_id = ?", m.TransactionID).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return domain.NewConflict(domain.ConflictDuplicateTxn, "wallet transaction %s was already applied", m.TransactionID)
		}

		prevVersion := wallet.Version
		var err error
		txn, err = wallet.Apply(op, m.Amount)
		if err != nil {
			return err
		}
		if err := wallet.CheckInvariants(); err != nil {
			return err
		}

		now := r.now()
		updates := map[string]interface{}{
			"available_balance": wallet.AvailableBalance,
			"pending_balance":   wallet.PendingBalance,
			"reserved_balance":  wallet.ReservedBalance,
			"total_balance":     wallet.TotalBalance,
			"version":           wallet.Version,
		}
		if op == domain.OpSettleReserved {
			wallet.LastSettlementAt = &now
			wallet.LastSettlementAmount = m.Amount
			updates["last_settlement_at"] = now
			updates["last_settlement_amount"] = m.Amount
		}
		res := tx.Model(&models.SellerWallet{}).
			Where("id = ? AND version = ?", wallet.ID, prevVersion).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NewConflict(domain.ConflictVersionMismatch, "wallet %s was modified concurrently", wallet.ID)
		}

		txn.TransactionID = m.TransactionID
		txn.Category = m.Category
		txn.Description = m.Description
		txn.Reference = m.Reference
		txn.ProcessedAt = now
		if err := tx.Create(txn).Error; err != nil {
			if isDuplicateKey(err) {
				return domain.NewConflict(domain.ConflictDuplicateTxn, "wallet transaction %s was already applied", m.TransactionID)
			}
			return err
		}
		for _, hook := range hooks {
			if err := hook(tx, &wallet); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &wallet, txn, nil
}

func (r *WalletRepository) GetTransaction(ctx context.Context, transactionID string) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&t).Error; err != nil {
		return nil, notFound(err, "wallet transaction", transactionID)
	}
	return &t, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, sellerID string, page, pageSize int) ([]models.WalletTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("seller_id = ?", sellerID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	_, size, offset := domain.Paginate(page, pageSize)
	var list []models.WalletTransaction
	err := q.Order("processed_at DESC, id DESC").Limit(size).Offset(offset).Find(&list).Error
	return list, total, err
}

// SumAmounts totals transactions of category produced by any of ops and processed in [from, to).
func (r *WalletRepository) SumAmounts(ctx context.Context, sellerID string, category domain.Category, ops []domain.WalletOperation, from, to time.Time) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("seller_id = ? AND category = ? AND operation IN ?", sellerID, category, ops).
		Where("processed_at >= ? AND processed_at < ?", from, to).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return money.Round2(row.Total), nil
}
