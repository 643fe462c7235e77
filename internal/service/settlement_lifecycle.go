package service

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/pkg/money"
	"marketplace/pkg/payout"
)

// ProcessSettlement claims the settlement, moves it to PROCESSING and hands it to payout
// execution in the background. The payout outcome is observable on the settlement and
// through events, not through this call.
func (s *SettlementService) ProcessSettlement(ctx context.Context, id, actor string) (*models.Settlement, error) {
	st, err := s.settlements.LockForProcessing(ctx, id, actor, domain.SettlementPending, domain.SettlementFailed)
	if err != nil {
		return nil, err
	}
	before := snapshot(st)
	if _, err := s.validator.CheckProcessingReadiness(ctx, st, actor); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}

	now := s.now()
	expected := st.Version
	if st.Status == domain.SettlementFailed {
		// a FAILED settlement is only re-driven within its retry budget and backoff
		if err := s.retryRefusal(st, now); err != nil {
			s.unlock(ctx, st.ID, actor)
			return nil, err
		}
		err = st.BeginRetry(s.opts.MaxRetries, now, s.opts.RetryBackoffBase)
	} else {
		err = st.MarkProcessing(now)
	}
	if err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}
	if err := s.save(ctx, st, expected, processingStarted(st, actor)); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}
	s.startPayout(ctx, st, before, actor, "PROCESS")
	return st, nil
}

// CancelSettlement cancels a PENDING or FAILED settlement. The lock is always released.
func (s *SettlementService) CancelSettlement(ctx context.Context, id, actor, reason string) (*models.Settlement, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.NewValidationError(domain.CodeRequired, "reason", "cancellation reason is required")
	}
	st, err := s.settlements.LockForProcessing(ctx, id, actor, domain.SettlementPending, domain.SettlementFailed)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, st.ID, actor)

	before := snapshot(st)
	expected := st.Version
	if err := st.MarkCancelled(actor, reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, st, expected, settlementEvent(events.SettlementCancelled, actor, map[string]interface{}{"reason": st.CancellationReason})); err != nil {
		return nil, err
	}
	st.Unlock()

	s.log.Info().Str("settlement_id", st.ID).Str("actor", actor).Msg("settlement cancelled")
	s.recordAudit(ctx, "settlement", st.ID, "CANCEL", actor, before, st, map[string]interface{}{"reason": reason})
	return st, nil
}

// RetrySettlement starts a new payout attempt for a FAILED settlement whose backoff has
// elapsed and whose retry budget is not exhausted.
func (s *SettlementService) RetrySettlement(ctx context.Context, id, actor string) (*models.Settlement, error) {
	st, err := s.settlements.LockForProcessing(ctx, id, actor, domain.SettlementFailed)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.retryRefusal(st, now); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}
	before := snapshot(st)
	if _, err := s.validator.CheckProcessingReadiness(ctx, st, actor); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}

	expected := st.Version
	if err := st.BeginRetry(s.opts.MaxRetries, now, s.opts.RetryBackoffBase); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}
	if err := s.save(ctx, st, expected, processingStarted(st, actor)); err != nil {
		s.unlock(ctx, st.ID, actor)
		return nil, err
	}
	s.startPayout(ctx, st, before, actor, "RETRY")
	return st, nil
}

// ReconcileSettlement confirms a completed payout against the gateway and marks it
// reconciled. It does not take the advisory lock.
func (s *SettlementService) ReconcileSettlement(ctx context.Context, id, actor string) (*models.Settlement, error) {
	st, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status(st.GatewayStatus).IsFailure() {
		return nil, &domain.InvalidStateError{Entity: "settlement", ID: st.ID, State: st.GatewayStatus, Message: "payout was reversed by the gateway"}
	}
	before := snapshot(st)

	if st.Status == domain.SettlementCompleted && !st.IsReconciled && st.GatewayPayoutID != nil {
		gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
		res, err := s.gateway.GetPayoutStatus(gctx, *st.GatewayPayoutID)
		cancel()
		if err != nil {
			return nil, err
		}
		if res.Status.IsFailure() {
			return nil, &domain.InvalidStateError{Entity: "settlement", ID: st.ID, State: string(res.Status), Message: "payout was not disbursed"}
		}
		if !res.Status.IsProcessed() {
			return nil, &domain.InvalidStateError{Entity: "settlement", ID: st.ID, State: string(res.Status), Message: "payout is not yet processed by the gateway"}
		}
		if !res.Amount.IsZero() && !money.WithinTolerance(res.Amount, st.NetAmount) {
			return nil, domain.NewValidationError(domain.CodeReconcileMismatch, "net",
				"gateway disbursed %s, settlement net is %s", res.Amount.StringFixed(2), st.NetAmount.StringFixed(2))
		}
		st.RecordGatewayResult(res)
	}

	expected := st.Version
	if err := st.MarkReconciled(actor, s.now()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, st, expected, settlementEvent(events.SettlementReconciled, actor, nil)); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "settlement", st.ID, "RECONCILE", actor, before, st, nil)
	return st, nil
}

// retryRefusal explains why a FAILED settlement may not start another attempt yet, or
// returns nil when it may.
func (s *SettlementService) retryRefusal(st *models.Settlement, now time.Time) error {
	if st.CanRetry(s.opts.MaxRetries, now) {
		return nil
	}
	msg := "retry backoff has not elapsed"
	if st.RetryCount >= s.opts.MaxRetries {
		msg = "retry limit reached"
	}
	return &domain.InvalidStateError{Entity: "settlement", ID: st.ID, State: string(st.Status), Message: msg}
}

// unlock releases owner's advisory lock even when ctx is already cancelled.
func (s *SettlementService) unlock(ctx context.Context, id, owner string) {
	if err := s.settlements.Unlock(context.WithoutCancel(ctx), id, owner); err != nil {
		s.log.Error().Err(err).Str("settlement_id", id).Msg("failed to release settlement lock")
	}
}
