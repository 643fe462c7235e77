package service

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementStore is the persistence contract the orchestration depends on.
type SettlementStore interface {
	Create(ctx context.Context, s *models.Settlement, hooks ...func(tx *gorm.DB) error) error
	GetByID(ctx context.Context, id string) (*models.Settlement, error)
	GetByCode(ctx context.Context, code string) (*models.Settlement, error)
	GetByGatewayPayoutID(ctx context.Context, payoutID string) (*models.Settlement, error)
	List(ctx context.Context, f domain.SettlementFilter) ([]models.Settlement, int64, error)
	ListActiveBySeller(ctx context.Context, sellerID string) ([]models.Settlement, error)
	LockForProcessing(ctx context.Context, id, actor string, allowed ...domain.SettlementStatus) (*models.Settlement, error)
	Unlock(ctx context.Context, id, owner string) error
	UpdateWithVersion(ctx context.Context, id string, patch map[string]interface{}, expectedVersion int64, hooks ...func(tx *gorm.DB) error) error
	FindPendingPastHold(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error)
	FindRetryCandidates(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.Settlement, error)
	FindStalledProcessing(ctx context.Context, limit int) ([]models.Settlement, error)
	FindAwaitingGateway(ctx context.Context, limit int) ([]models.Settlement, error)
	Summarize(ctx context.Context, from, to *time.Time) (*domain.SettlementSummary, error)
}

type SellerAccountStore interface {
	GetByID(ctx context.Context, id string) (*models.SellerAccount, error)
	GetBySellerID(ctx context.Context, sellerID string) (*models.SellerAccount, error)
	UpdateGatewayLink(ctx context.Context, id, contactID, fundAccountID string, at time.Time) error
}

type WalletStore interface {
	GetBySellerID(ctx context.Context, sellerID string) (*models.SellerWallet, error)
	GetOrCreate(ctx context.Context, sellerID, currency string) (*models.SellerWallet, error)
	ApplyMutation(ctx context.Context, op domain.WalletOperation, m domain.WalletMutation, hooks ...func(tx *gorm.DB, w *models.SellerWallet) error) (*models.SellerWallet, *models.WalletTransaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, sellerID string, page, pageSize int) ([]models.WalletTransaction, int64, error)
	SumAmounts(ctx context.Context, sellerID string, category domain.Category, ops []domain.WalletOperation, from, to time.Time) (decimal.Decimal, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.SettlementJob) error
	GetByID(ctx context.Context, id string) (*models.SettlementJob, error)
	List(ctx context.Context, page, pageSize int) ([]models.SettlementJob, int64, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	IncrementProgress(ctx context.Context, id string, success, failure, skipped int) error
	Finish(ctx context.Context, id string, status domain.JobStatus, lastError string, at time.Time) error
}

// AuditSink is append-only.
type AuditSink interface {
	LogAction(ctx context.Context, entityType, entityID, action, actor string, before, after interface{}, metadata map[string]interface{}) error
}

// EarningsCalculator computes what a seller is owed for [start, end).
type EarningsCalculator interface {
	Calculate(ctx context.Context, sellerID, currency string, start, end time.Time) (domain.AmountBreakdown, error)
}
