package service

import (
	"context"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
)

// JobTracker records batch job lifecycle and progress.
type JobTracker struct {
	jobs JobStore
	now  func() time.Time
}

func NewJobTracker(jobs JobStore) *JobTracker {
	return &JobTracker{jobs: jobs, now: func() time.Time { return time.Now().UTC() }}
}

func (t *JobTracker) WithClock(now func() time.Time) *JobTracker {
	t.now = now
	return t
}

// Start creates the job and marks it RUNNING.
func (t *JobTracker) Start(ctx context.Context, total, batchSize int, start, end time.Time, actor string) (*models.SettlementJob, error) {
	job := &models.SettlementJob{
		Type:        domain.JobTypeBulkSettlement,
		Status:      domain.JobPending,
		TotalCount:  total,
		BatchSize:   batchSize,
		PeriodStart: start,
		PeriodEnd:   end,
		CreatedBy:   actor,
	}
	if err := t.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	at := t.now()
	if err := t.jobs.MarkRunning(ctx, job.ID, at); err != nil {
		return nil, err
	}
	job.Status = domain.JobRunning
	job.StartedAt = &at
	return job, nil
}

func (t *JobTracker) Progress(ctx context.Context, id string, success, failure, skipped int) error {
	if success+failure+skipped == 0 {
		return nil
	}
	return t.jobs.IncrementProgress(ctx, id, success, failure, skipped)
}

func (t *JobTracker) Complete(ctx context.Context, id string) error {
	return t.jobs.Finish(ctx, id, domain.JobCompleted, "", t.now())
}

func (t *JobTracker) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = truncateMessage(cause.Error(), 1000)
	}
	return t.jobs.Finish(ctx, id, domain.JobFailed, msg, t.now())
}

func (t *JobTracker) Get(ctx context.Context, id string) (*models.SettlementJob, error) {
	return t.jobs.GetByID(ctx, id)
}

func (t *JobTracker) List(ctx context.Context, page, pageSize int) ([]models.SettlementJob, int64, error) {
	return t.jobs.List(ctx, page, pageSize)
}

func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
