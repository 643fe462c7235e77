package models

import "time"

// AuditLog is append-only. Before and After hold JSON snapshots of the entity.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EntityType string    `gorm:"size:50;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   string    `gorm:"size:100;not null;index:idx_audit_entity" json:"entity_id"`
	Action     string    `gorm:"size:100;not null;index" json:"action"`
	Actor      string    `gorm:"size:100;not null" json:"actor"`
	Before     string    `gorm:"type:text" json:"before,omitempty"`
	After      string    `gorm:"type:text" json:"after,omitempty"`
	Metadata   string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
