package models

import (
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettlementJob tracks a long-running batch. Counters are only changed by atomic increments.
type SettlementJob struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	Type           string           `gorm:"size:40;not null;index" json:"type"`
	Status         domain.JobStatus `gorm:"size:20;not null;index" json:"status"`
	TotalCount     int              `gorm:"not null;default:0" json:"total_count"`
	ProcessedCount int              `gorm:"not null;default:0" json:"processed_count"`
	SuccessCount   int              `gorm:"not null;default:0" json:"success_count"`
	FailureCount   int              `gorm:"not null;default:0" json:"failure_count"`
	SkippedCount   int              `gorm:"not null;default:0" json:"skipped_count"`
	BatchSize      int              `gorm:"not null" json:"batch_size"`
	PeriodStart    time.Time        `json:"period_start"`
	PeriodEnd      time.Time        `json:"period_end"`
	CreatedBy      string           `gorm:"size:100" json:"created_by"`
	LastError      string           `gorm:"size:1000" json:"last_error,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (SettlementJob) TableName() string {
	return "settlement_jobs"
}

func (j *SettlementJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

func (j *SettlementJob) Progress() float64 {
	if j.TotalCount == 0 {
		return 0
	}
	return float64(j.ProcessedCount) / float64(j.TotalCount)
}
