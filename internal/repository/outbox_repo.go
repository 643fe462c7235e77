package repository

import (
	"context"
	"time"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Append(ctx context.Context, e *models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// AppendTx writes e as part of tx.
func (r *OutboxRepository) AppendTx(ctx context.Context, tx *gorm.DB, e *models.OutboxEvent) error {
	return tx.WithContext(ctx).Create(e).Error
}

// FetchUndelivered returns the oldest undelivered events that have not exhausted maxAttempts.
func (r *OutboxRepository) FetchUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var list []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("delivered_at IS NULL AND attempts < ?", maxAttempts).
		Order("occurred_at ASC, id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Update("delivered_at", at).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}
