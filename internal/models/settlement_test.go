package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"marketplace/internal/domain"
	"marketplace/pkg/payout"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

func newSettlement(status domain.SettlementStatus) *Settlement {
	s := &Settlement{
		ID:                "set-1",
		SellerID:          "seller-1",
		Status:            status,
		Version:           1,
		GrossAmount:       decimal.RequireFromString("10000.00"),
		CommissionAmount:  decimal.RequireFromString("500.00"),
		PlatformFeeAmount: decimal.RequireFromString("100.00"),
		TaxAmount:         decimal.RequireFromString("90.00"),
		AdjustmentAmount:  decimal.RequireFromString("-10.00"),
		NetAmount:         decimal.RequireFromString("9300.00"),
		Currency:          "INR",
	}
	s.syncActiveKey()
	return s
}

func TestIllegalTransitionLeavesSettlementUnchanged(t *testing.T) {
	s := newSettlement(domain.SettlementCompleted)
	err := s.TransitionTo(domain.SettlementProcessing, t0)

	var terr *domain.InvalidStateTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.SettlementCompleted, terr.From)
	assert.Equal(t, domain.SettlementCompleted, s.Status)
	assert.Equal(t, int64(1), s.Version)
	assert.Nil(t, s.ProcessingStartedAt)
}

func TestTransitionMaintainsActiveKey(t *testing.T) {
	s := newSettlement(domain.SettlementPending)
	require.NotNil(t, s.ActiveSellerKey)

	require.NoError(t, s.MarkProcessing(t0))
	require.NotNil(t, s.ActiveSellerKey)
	assert.Equal(t, int64(2), s.Version)

	require.NoError(t, s.MarkFailed("bank offline", payout.CodeServer, true, t0, time.Minute))
	assert.Nil(t, s.ActiveSellerKey)
	assert.Equal(t, int64(3), s.Version)
	require.NotNil(t, s.NextRetryAt)
	assert.Equal(t, t0.Add(time.Minute), *s.NextRetryAt)
}

func TestLockSemantics(t *testing.T) {
	s := newSettlement(domain.SettlementPending)
	require.NoError(t, s.Lock("worker-a", t0))
	require.NoError(t, s.Lock("worker-a", t0.Add(time.Second)))

	err := s.Lock("worker-b", t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
	assert.Equal(t, "worker-a", *s.LockedBy)

	assert.True(t, s.LockedByOther("worker-b", t0.Add(time.Minute), 15*time.Minute))
	assert.False(t, s.LockedByOther("worker-b", t0.Add(time.Hour), 15*time.Minute))

	v := s.Version
	s.Unlock()
	assert.False(t, s.IsLocked())
	assert.Equal(t, v+1, s.Version)
	s.Unlock()
	assert.Equal(t, v+1, s.Version)
}

func TestRetryBookkeeping(t *testing.T) {
	s := newSettlement(domain.SettlementProcessing)
	require.NoError(t, s.MarkFailed("timeout", payout.CodeTimeout, true, t0, 30*time.Minute))

	assert.False(t, s.CanRetry(3, t0.Add(10*time.Minute)))
	now := t0.Add(30 * time.Minute)
	assert.True(t, s.CanRetry(3, now))
	assert.True(t, s.ShouldRetry(3, now))

	require.NoError(t, s.BeginRetry(3, now, 30*time.Minute))
	assert.Equal(t, domain.SettlementProcessing, s.Status)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, now.Add(time.Hour), *s.NextRetryAt)
	assert.Empty(t, s.FailureReason)

	require.NoError(t, s.MarkFailed("timeout", payout.CodeTimeout, true, now, 30*time.Minute))
	assert.Equal(t, now.Add(time.Hour), *s.NextRetryAt)

	s.RetryCount = 3
	assert.False(t, s.CanRetry(3, now.Add(24*time.Hour)))
	err := s.BeginRetry(3, now.Add(24*time.Hour), time.Minute)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNonRetryableFailureIsNotSwept(t *testing.T) {
	s := newSettlement(domain.SettlementProcessing)
	require.NoError(t, s.MarkFailed("invalid fund account", payout.CodeBadRequest, false, t0, time.Minute))
	assert.Nil(t, s.NextRetryAt)
	assert.True(t, s.CanRetry(3, t0))
	assert.False(t, s.ShouldRetry(3, t0))
}

func TestReconcile(t *testing.T) {
	s := newSettlement(domain.SettlementPending)
	assert.ErrorIs(t, s.MarkReconciled("ops", t0), domain.ErrInvalidState)

	require.NoError(t, s.MarkProcessing(t0))
	require.NoError(t, s.MarkCompleted(&payout.PayoutResult{GatewayPayoutID: "pout_1", Status: payout.StatusProcessed}, t0))
	assert.Equal(t, "pout_1", *s.GatewayPayoutID)

	require.NoError(t, s.MarkReconciled("ops", t0))
	assert.True(t, s.IsReconciled)
	assert.ErrorIs(t, s.MarkReconciled("ops", t0), domain.ErrInvalidState)
}

func TestBreakdownReconciles(t *testing.T) {
	s := newSettlement(domain.SettlementPending)
	assert.True(t, s.BreakdownReconciles())
	s.NetAmount = decimal.RequireFromString("9300.02")
	assert.False(t, s.BreakdownReconciles())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(time.Minute, 0))
	assert.Equal(t, 4*time.Minute, Backoff(time.Minute, 2))
	assert.Equal(t, 1024*time.Minute, Backoff(time.Minute, 50))
}

func TestFailureReasonKeepsValidUTF8(t *testing.T) {
	s := newSettlement(domain.SettlementProcessing)
	reason := strings.Repeat("₹", 200) // 600 bytes
	require.NoError(t, s.MarkFailed(reason, payout.CodeServer, true, t0, time.Minute))

	assert.True(t, utf8.ValidString(s.FailureReason))
	assert.LessOrEqual(t, len(s.FailureReason), 500)
	assert.Equal(t, 166, utf8.RuneCountInString(s.FailureReason))

	assert.Equal(t, "ab", truncate("ab", 5))
	assert.Equal(t, "a", truncate("aé", 2))
}
