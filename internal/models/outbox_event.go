package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxEvent is a domain event waiting to be relayed to subscribers.
type OutboxEvent struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	EventType   string     `gorm:"size:64;not null;index" json:"event_type"`
	AggregateID string     `gorm:"size:100;index" json:"aggregate_id"`
	Payload     string     `gorm:"type:text;not null" json:"payload"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"size:1000" json:"last_error,omitempty"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
	OccurredAt  time.Time  `gorm:"not null;index" json:"occurred_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

func (e *OutboxEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
