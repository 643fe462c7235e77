package repository

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/pkg/money"

	"gorm.io/gorm"
)

type SettlementRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewSettlementRepository returns a repository whose advisory locks go stale after lockTimeout.
func NewSettlementRepository(db *gorm.DB, lockTimeout time.Duration) *SettlementRepository {
	return &SettlementRepository{db: db, lockTimeout: lockTimeout, now: utcNow}
}

// WithClock replaces the clock used for lock timestamps.
func (r *SettlementRepository) WithClock(now func() time.Time) *SettlementRepository {
	r.now = now
	return r
}

// Create inserts a settlement. The unique index on active_seller_key turns a racing
// second active settlement for the same seller into ACTIVE_SETTLEMENT_EXISTS.
// Create inserts s. Hooks run after the insert in the same transaction and roll it back on error.
func (r *SettlementRepository) Create(ctx context.Context, s *models.Settlement, hooks ...func(tx *gorm.DB) error) error {
	err := r.atomically(ctx, hooks, func(tx *gorm.DB) error {
		return tx.Create(s).Error
	})
	if isDuplicateKey(err) {
		return r.classifyDuplicate(ctx, s.SellerID, s.Status.IsActive())
	}
	return err
}

// atomically runs write and then hooks in one transaction. Without hooks write runs on its own.
func (r *SettlementRepository) atomically(ctx context.Context, hooks []func(tx *gorm.DB) error, write func(tx *gorm.DB) error) error {
	db := r.db.WithContext(ctx)
	if len(hooks) == 0 {
		return write(db)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := write(tx); err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SettlementRepository) classifyDuplicate(ctx context.Context, sellerID string, active bool) error {
	if active {
		var n int64
		r.db.WithContext(ctx).Model(&models.Settlement{}).
			Where("seller_id = ? AND status IN ?", sellerID, domain.ActiveStatuses()).
			Count(&n)
		if n > 0 {
			return domain.NewConflict(domain.ConflictActiveSettlement, "seller %s already has an active settlement", sellerID)
		}
	}
	return domain.NewConflict(domain.ConflictDuplicateCode, "settlement code or payout reference already exists")
}

func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err, "settlement", id)
	}
	return &s, nil
}

func (r *SettlementRepository) GetByCode(ctx context.Context, code string) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&s).Error; err != nil {
		return nil, notFound(err, "settlement", code)
	}
	return &s, nil
}

func (r *SettlementRepository) GetByGatewayPayoutID(ctx context.Context, payoutID string) (*models.Settlement, error) {
	var s models.Settlement
	if err := r.db.WithContext(ctx).Where("gateway_payout_id = ?", payoutID).First(&s).Error; err != nil {
		return nil, notFound(err, "settlement", payoutID)
	}
	return &s, nil
}

func (r *SettlementRepository) List(ctx context.Context, f domain.SettlementFilter) ([]models.Settlement, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Settlement{})
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("period_end >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("period_end < ?", *f.To)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	_, size, offset := domain.Paginate(f.Page, f.PageSize)
	var list []models.Settlement
	err := q.Order("created_at DESC").Limit(size).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *SettlementRepository) ListActiveBySeller(ctx context.Context, sellerID string) ([]models.Settlement, error) {
	var list []models.Settlement
	err := r.db.WithContext(ctx).
		Where("seller_id = ? AND status IN ?", sellerID, domain.ActiveStatuses()).
		Find(&list).Error
	return list, err
}

// LockForProcessing atomically claims the advisory lock for actor. The claim succeeds only
// when the settlement is in one of allowed (PENDING or FAILED by default) and is unlocked
// or holds a lock older than the lock timeout.
func (r *SettlementRepository) LockForProcessing(ctx context.Context, id, actor string, allowed ...domain.SettlementStatus) (*models.Settlement, error) {
	if len(allowed) == 0 {
		allowed = []domain.SettlementStatus{domain.SettlementPending, domain.SettlementFailed}
	}
	now := r.now()
	staleBefore := now.Add(-r.lockTimeout)

	res := r.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ? AND status IN ?", id, allowed).
		Where("(locked_by IS NULL OR locked_at < ?)", staleBefore).
		Updates(map[string]interface{}{
			"locked_by": actor,
			"locked_at": now,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}

	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if s.LockedBy != nil {
			return nil, domain.NewConflict(domain.ConflictAlreadyLocked, "settlement %s is locked by %s", id, *s.LockedBy)
		}
		return nil, &domain.InvalidStateError{Entity: "settlement", ID: id, State: string(s.Status), Message: "settlement cannot be locked in this state"}
	}
	return s, nil
}

// Unlock clears the advisory lock only while owner still holds it; a lock taken over by
// another worker after going stale is left alone. Unlocking an unlocked settlement is a no-op.
func (r *SettlementRepository) Unlock(ctx context.Context, id, owner string) error {
	return r.db.WithContext(ctx).Model(&models.Settlement{}).
		Where("id = ? AND locked_by = ?", id, owner).
		Updates(map[string]interface{}{
			"locked_by": nil,
			"locked_at": nil,
			"version":   gorm.Expr("version + 1"),
		}).Error
}

// UpdateWithVersion applies patch only if the stored version equals expectedVersion.
// Hooks run in the same transaction as the update.
func (r *SettlementRepository) UpdateWithVersion(ctx context.Context, id string, patch map[string]interface{}, expectedVersion int64, hooks ...func(tx *gorm.DB) error) error {
	if _, ok := patch["version"]; !ok {
		patch["version"] = gorm.Expr("version + 1")
	}
	err := r.atomically(ctx, hooks, func(tx *gorm.DB) error {
		res := tx.Model(&models.Settlement{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(patch)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.Settlement{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return domain.NewNotFound("settlement", id)
			}
			return domain.NewConflict(domain.ConflictVersionMismatch, "settlement %s was modified concurrently (expected version %d)", id, expectedVersion)
		}
		return nil
	})
	if isDuplicateKey(err) {
		var s models.Settlement
		if err := r.db.WithContext(ctx).Select("seller_id").Where("id = ?", id).First(&s).Error; err != nil {
			return notFound(err, "settlement", id)
		}
		return r.classifyDuplicate(ctx, s.SellerID, true)
	}
	return err
}

// FindPendingPastHold returns unlocked PENDING settlements whose period ended at or before cutoff.
func (r *SettlementRepository) FindPendingPastHold(ctx context.Context, cutoff time.Time, limit int) ([]models.Settlement, error) {
	var list []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ? AND period_end <= ?", domain.SettlementPending, cutoff).
		Where("(locked_by IS NULL OR locked_at < ?)", r.now().Add(-r.lockTimeout)).
		Order("period_end ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// FindRetryCandidates returns FAILED settlements whose failure is retryable and whose backoff has elapsed.
func (r *SettlementRepository) FindRetryCandidates(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.Settlement, error) {
	var list []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ? AND failure_retryable = ? AND retry_count < ?", domain.SettlementFailed, true, maxRetries).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
		Where("(locked_by IS NULL OR locked_at < ?)", r.now().Add(-r.lockTimeout)).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// FindStalledProcessing returns PROCESSING settlements nobody is driving: their lock was
// released after a failed write, or has gone stale.
func (r *SettlementRepository) FindStalledProcessing(ctx context.Context, limit int) ([]models.Settlement, error) {
	var list []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.SettlementProcessing).
		Where("(locked_by IS NULL OR locked_at < ?)", r.now().Add(-r.lockTimeout)).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// FindAwaitingGateway returns completed settlements whose payout the provider has not finalised.
func (r *SettlementRepository) FindAwaitingGateway(ctx context.Context, limit int) ([]models.Settlement, error) {
	var list []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ? AND gateway_payout_id IS NOT NULL AND gateway_status IN ?",
			domain.SettlementCompleted, []string{"queued", "pending", "processing"}).
		Order("completed_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// Summarize returns per-status counts and net totals for settlements created in [from, to).
func (r *SettlementRepository) Summarize(ctx context.Context, from, to *time.Time) (*domain.SettlementSummary, error) {
	q := r.db.WithContext(ctx).Model(&models.Settlement{})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}
	var rows []domain.StatusSummary
	err := q.Select("status, COUNT(*) AS count, COALESCE(SUM(net_amount), 0) AS total_net").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sum := &domain.SettlementSummary{From: from, To: to, ByStatus: rows}
	for i := range rows {
		// SQLite sums decimals as floats
		rows[i].TotalNet = money.Round2(rows[i].TotalNet)
		sum.TotalCount += rows[i].Count
		sum.TotalNet = sum.TotalNet.Add(rows[i].TotalNet)
	}
	return sum, nil
}
