package repository

import (
	"context"
	"encoding/json"

	"marketplace/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// LogAction appends an audit record. before, after and metadata are stored as JSON.
func (r *AuditLogRepository) LogAction(ctx context.Context, entityType, entityID, action, actor string, before, after interface{}, metadata map[string]interface{}) error {
	return r.Create(ctx, &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Before:     toJSON(before),
		After:      toJSON(after),
		Metadata:   toJSON(metadata),
	})
}

func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func toJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
