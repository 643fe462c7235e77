package repository

import (
	"context"
	"sync"
	"testing"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCountersAreAtomic(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()
	job := &models.SettlementJob{Type: domain.JobTypeBulkSettlement, Status: domain.JobPending, TotalCount: 40, BatchSize: 10}
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.MarkRunning(ctx, job.ID, fixedNow))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementProgress(ctx, job.ID, 1, 1, 0))
		}()
	}
	wg.Wait()
	require.NoError(t, repo.Finish(ctx, job.ID, domain.JobCompleted, "", fixedNow))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, 40, got.ProcessedCount)
	assert.Equal(t, 20, got.SuccessCount)
	assert.Equal(t, 20, got.FailureCount)
	assert.InDelta(t, 1.0, got.Progress(), 0.0001)

	assert.ErrorIs(t, repo.IncrementProgress(ctx, "missing", 1, 0, 0), domain.ErrNotFound)
}

func TestAuditAndOutbox(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	audit := NewAuditLogRepository(db)
	require.NoError(t, audit.LogAction(ctx, "settlement", "set-1", "settlement.created", "ops",
		nil, map[string]string{"status": "PENDING"}, map[string]interface{}{"code": "STL-1"}))
	logs, err := audit.ListByEntity(ctx, "settlement", "set-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "", logs[0].Before)
	assert.JSONEq(t, `{"status":"PENDING"}`, logs[0].After)

	outbox := NewOutboxRepository(db)
	e := &models.OutboxEvent{EventType: "SettlementCreated", AggregateID: "set-1", Payload: `{}`, OccurredAt: fixedNow}
	require.NoError(t, outbox.Append(ctx, e))
	require.NoError(t, outbox.MarkFailed(ctx, e.ID, "subscriber down"))

	pending, err := outbox.FetchUndelivered(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	pending, err = outbox.FetchUndelivered(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, outbox.MarkDelivered(ctx, e.ID, fixedNow))
	pending, err = outbox.FetchUndelivered(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
