package models

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"marketplace/internal/domain"
	"marketplace/pkg/money"
	"marketplace/pkg/payout"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Settlement is one payout cycle for one seller and period. Rows are never deleted.
type Settlement struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	Code            string     `gorm:"size:40;uniqueIndex;not null" json:"code"`
	SellerID        string     `gorm:"size:36;not null;index" json:"seller_id"`
	SellerAccountID string     `gorm:"size:36;not null" json:"seller_account_id"`
	PeriodStart     time.Time  `gorm:"not null;index" json:"period_start"`
	PeriodEnd       time.Time  `gorm:"not null;index" json:"period_end"`
	SettlementDate  *time.Time `json:"settlement_date,omitempty"`

	GrossAmount       decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"gross_amount"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"commission_amount"`
	PlatformFeeAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"platform_fee_amount"`
	TaxAmount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"tax_amount"`
	AdjustmentAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"adjustment_amount"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net_amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`

	Status domain.SettlementStatus `gorm:"size:20;not null;index" json:"status"`
	// ActiveSellerKey holds SellerID while PENDING or PROCESSING and NULL otherwise,
	// so the unique index admits one active settlement per seller.
	ActiveSellerKey *string `gorm:"size:36;uniqueIndex" json:"-"`
	Version         int64   `gorm:"not null;default:1" json:"version"`

	LockedBy *string    `gorm:"size:100" json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	RetryCount       int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt      *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
	FailureReason    string     `gorm:"size:500" json:"failure_reason,omitempty"`
	FailureCode      string     `gorm:"size:64" json:"failure_code,omitempty"`
	FailureRetryable bool       `gorm:"not null;default:false" json:"failure_retryable"`

	IsReconciled bool       `gorm:"not null;default:false" json:"is_reconciled"`
	ReconciledBy *string    `gorm:"size:100" json:"reconciled_by,omitempty"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`

	GatewayPayoutID *string `gorm:"size:64;uniqueIndex" json:"gateway_payout_id,omitempty"`
	GatewayStatus   string  `gorm:"size:32" json:"gateway_status,omitempty"`
	GatewayUTR      string  `gorm:"size:64" json:"gateway_utr,omitempty"`
	GatewayResponse string  `gorm:"type:text" json:"-"`

	CancelledBy        *string `gorm:"size:100" json:"cancelled_by,omitempty"`
	CancellationReason string  `gorm:"size:500" json:"cancellation_reason,omitempty"`
	CreatedBy          string  `gorm:"size:100" json:"created_by"`
	Notes              string  `gorm:"size:1000" json:"notes,omitempty"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	FailedAt            *time.Time `json:"failed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (Settlement) TableName() string {
	return "settlements"
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	s.syncActiveKey()
	return nil
}

func (s *Settlement) syncActiveKey() {
	if s.Status.IsActive() {
		key := s.SellerID
		s.ActiveSellerKey = &key
		return
	}
	s.ActiveSellerKey = nil
}

func (s *Settlement) Breakdown() domain.AmountBreakdown {
	return domain.AmountBreakdown{
		Gross:       s.GrossAmount,
		Commission:  s.CommissionAmount,
		PlatformFee: s.PlatformFeeAmount,
		Tax:         s.TaxAmount,
		Adjustment:  s.AdjustmentAmount,
		Net:         s.NetAmount,
	}
}

func (s *Settlement) BreakdownReconciles() bool {
	return money.WithinTolerance(s.NetAmount, s.Breakdown().ExpectedNet())
}

func (s *Settlement) IsLocked() bool {
	return s.LockedBy != nil
}

// LockedByOther reports whether a lock held by someone other than actor is still live.
func (s *Settlement) LockedByOther(actor string, now time.Time, staleAfter time.Duration) bool {
	if s.LockedBy == nil || *s.LockedBy == actor {
		return false
	}
	if staleAfter > 0 && s.LockedAt != nil && now.Sub(*s.LockedAt) > staleAfter {
		return false
	}
	return true
}

// TransitionTo moves the settlement to status to, or fails without changing anything.
func (s *Settlement) TransitionTo(to domain.SettlementStatus, at time.Time) error {
	if !domain.CanTransition(s.Status, to) {
		return &domain.InvalidStateTransitionError{From: s.Status, To: to}
	}
	s.Status = to
	s.syncActiveKey()
	switch to {
	case domain.SettlementProcessing:
		s.ProcessingStartedAt = &at
	case domain.SettlementCompleted:
		s.CompletedAt = &at
	case domain.SettlementFailed:
		s.FailedAt = &at
	case domain.SettlementCancelled:
		s.CancelledAt = &at
	}
	s.Version++
	return nil
}

// Lock takes the advisory lock for actor. Re-locking by the holder refreshes LockedAt.
func (s *Settlement) Lock(actor string, at time.Time) error {
	if s.LockedBy != nil && *s.LockedBy != actor {
		return domain.NewConflict(domain.ConflictAlreadyLocked, "settlement %s is locked by %s", s.ID, *s.LockedBy)
	}
	s.LockedBy = &actor
	s.LockedAt = &at
	s.Version++
	return nil
}

func (s *Settlement) Unlock() {
	if s.LockedBy == nil && s.LockedAt == nil {
		return
	}
	s.LockedBy = nil
	s.LockedAt = nil
	s.Version++
}

func (s *Settlement) MarkProcessing(at time.Time) error {
	if err := s.TransitionTo(domain.SettlementProcessing, at); err != nil {
		return err
	}
	s.FailureReason = ""
	s.FailureCode = ""
	s.FailureRetryable = false
	return nil
}

func (s *Settlement) MarkCompleted(res *payout.PayoutResult, at time.Time) error {
	if err := s.TransitionTo(domain.SettlementCompleted, at); err != nil {
		return err
	}
	s.NextRetryAt = nil
	if res != nil {
		s.RecordGatewayResult(res)
	}
	return nil
}

// MarkFailed records the failure. Retryable failures get the next backoff window.
func (s *Settlement) MarkFailed(reason, code string, retryable bool, at time.Time, backoffBase time.Duration) error {
	if err := s.TransitionTo(domain.SettlementFailed, at); err != nil {
		return err
	}
	s.FailureReason = truncate(reason, 500)
	s.FailureCode = code
	s.FailureRetryable = retryable
	if retryable {
		next := at.Add(Backoff(backoffBase, s.RetryCount))
		s.NextRetryAt = &next
	} else {
		s.NextRetryAt = nil
	}
	return nil
}

func (s *Settlement) MarkCancelled(actor, reason string, at time.Time) error {
	if err := s.TransitionTo(domain.SettlementCancelled, at); err != nil {
		return err
	}
	s.CancelledBy = &actor
	s.CancellationReason = truncate(reason, 500)
	s.NextRetryAt = nil
	return nil
}

// MarkReconciled annotates a completed settlement; it is not a state transition.
func (s *Settlement) MarkReconciled(actor string, at time.Time) error {
	if s.Status != domain.SettlementCompleted {
		return &domain.InvalidStateError{Entity: "settlement", ID: s.ID, State: string(s.Status), Message: "only completed settlements can be reconciled"}
	}
	if s.IsReconciled {
		return &domain.InvalidStateError{Entity: "settlement", ID: s.ID, State: string(s.Status), Message: "settlement is already reconciled"}
	}
	s.IsReconciled = true
	s.ReconciledBy = &actor
	s.ReconciledAt = &at
	s.Version++
	return nil
}

// CanRetry reports whether a failed settlement may be retried now.
func (s *Settlement) CanRetry(maxRetries int, now time.Time) bool {
	if s.Status != domain.SettlementFailed || s.RetryCount >= maxRetries {
		return false
	}
	return s.NextRetryAt == nil || !now.Before(*s.NextRetryAt)
}

// ShouldRetry is CanRetry restricted to failures the scheduler may retry on its own.
func (s *Settlement) ShouldRetry(maxRetries int, now time.Time) bool {
	return s.FailureRetryable && s.CanRetry(maxRetries, now)
}

// BeginRetry counts the attempt, opens the next backoff window and moves to PROCESSING.
func (s *Settlement) BeginRetry(maxRetries int, now time.Time, backoffBase time.Duration) error {
	if !s.CanRetry(maxRetries, now) {
		return &domain.InvalidStateError{Entity: "settlement", ID: s.ID, State: string(s.Status), Message: "settlement is not eligible for retry"}
	}
	s.RetryCount++
	next := now.Add(Backoff(backoffBase, s.RetryCount))
	s.NextRetryAt = &next
	return s.MarkProcessing(now)
}

func (s *Settlement) RecordGatewayResult(res *payout.PayoutResult) {
	if res.GatewayPayoutID != "" {
		id := res.GatewayPayoutID
		s.GatewayPayoutID = &id
	}
	s.GatewayStatus = string(res.Status)
	if res.UTR != "" {
		s.GatewayUTR = res.UTR
	}
	if res.Raw != nil {
		if raw, err := json.Marshal(res.Raw); err == nil {
			s.GatewayResponse = string(raw)
		}
	}
}

// ApplyGatewayUpdate records a later provider status for an already submitted payout.
func (s *Settlement) ApplyGatewayUpdate(res *payout.PayoutResult) {
	s.RecordGatewayResult(res)
	s.Version++
}

// StatePatch returns the mutable columns for a versioned update. Lock columns are
// owned by the repository's lock primitives and are never part of the patch.
func (s *Settlement) StatePatch() map[string]interface{} {
	return map[string]interface{}{
		"status":                s.Status,
		"active_seller_key":     s.ActiveSellerKey,
		"version":               s.Version,
		"retry_count":           s.RetryCount,
		"next_retry_at":         s.NextRetryAt,
		"failure_reason":        s.FailureReason,
		"failure_code":          s.FailureCode,
		"failure_retryable":     s.FailureRetryable,
		"is_reconciled":         s.IsReconciled,
		"reconciled_by":         s.ReconciledBy,
		"reconciled_at":         s.ReconciledAt,
		"gateway_payout_id":     s.GatewayPayoutID,
		"gateway_status":        s.GatewayStatus,
		"gateway_utr":           s.GatewayUTR,
		"gateway_response":      s.GatewayResponse,
		"cancelled_by":          s.CancelledBy,
		"cancellation_reason":   s.CancellationReason,
		"processing_started_at": s.ProcessingStartedAt,
		"completed_at":          s.CompletedAt,
		"failed_at":             s.FailedAt,
		"cancelled_at":          s.CancelledAt,
	}
}

// Backoff is base * 2^attempt, capped at 2^10 * base.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	return base * time.Duration(1<<uint(attempt))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
