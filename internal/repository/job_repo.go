package repository

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"gorm.io/gorm"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, j *models.SettlementJob) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.SettlementJob, error) {
	var j models.SettlementJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, notFound(err, "settlement job", id)
	}
	return &j, nil
}

func (r *JobRepository) List(ctx context.Context, page, pageSize int) ([]models.SettlementJob, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.SettlementJob{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	_, size, offset := domain.Paginate(page, pageSize)
	var list []models.SettlementJob
	err := q.Order("created_at DESC").Limit(size).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *JobRepository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{"status": domain.JobRunning, "started_at": at})
}

// IncrementProgress adds to the job counters with a single atomic UPDATE.
func (r *JobRepository) IncrementProgress(ctx context.Context, id string, success, failure, skipped int) error {
	return r.update(ctx, id, map[string]interface{}{
		"processed_count": gorm.Expr("processed_count + ?", success+failure+skipped),
		"success_count":   gorm.Expr("success_count + ?", success),
		"failure_count":   gorm.Expr("failure_count + ?", failure),
		"skipped_count":   gorm.Expr("skipped_count + ?", skipped),
	})
}

func (r *JobRepository) Finish(ctx context.Context, id string, status domain.JobStatus, lastError string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":       status,
		"last_error":   lastError,
		"completed_at": at,
	})
}

func (r *JobRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.SettlementJob{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewNotFound("settlement job", id)
	}
	return nil
}
