package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/pkg/payout"
)

// Wallet transaction ids are derived from the settlement and attempt so that a
// re-driven payout never applies a wallet effect twice.
func holdTxnID(st *models.Settlement) string {
	return fmt.Sprintf("settlement:%s:hold:%d", st.ID, st.RetryCount)
}

func releaseTxnID(st *models.Settlement) string {
	return fmt.Sprintf("settlement:%s:release:%d", st.ID, st.RetryCount)
}

func payoutTxnID(st *models.Settlement) string {
	return fmt.Sprintf("settlement:%s:payout", st.ID)
}

func reversalTxnID(st *models.Settlement) string {
	return fmt.Sprintf("settlement:%s:reversal", st.ID)
}

func idempotencyKey(st *models.Settlement) string {
	return fmt.Sprintf("%s-%d", st.ID, st.RetryCount)
}

func isDuplicateTxn(err error) bool {
	return errors.Is(err, domain.ErrDuplicateTransaction)
}

func (s *SettlementService) mutation(st *models.Settlement, txnID string, cat domain.Category, actor, description string) domain.WalletMutation {
	return domain.WalletMutation{
		SellerID:      st.SellerID,
		Amount:        st.NetAmount,
		Category:      cat,
		TransactionID: txnID,
		Description:   description,
		Reference:     st.ID,
		Actor:         actor,
	}
}

func processingStarted(st *models.Settlement, actor string) pendingEvent {
	return settlementEvent(events.SettlementProcessingStarted, actor, map[string]interface{}{"retry_count": st.RetryCount})
}

// startPayout audits the transition to PROCESSING and dispatches the payout.
func (s *SettlementService) startPayout(ctx context.Context, st *models.Settlement, before models.Settlement, actor, action string) {
	s.log.Info().
		Str("settlement_id", st.ID).
		Str("actor", actor).
		Int("attempt", st.RetryCount).
		Msg("settlement processing started")
	s.recordAudit(ctx, "settlement", st.ID, action, actor, before, st, nil)
	s.dispatch(ctx, st.ID, actor)
}

// dispatch runs executePayout detached from the caller's cancellation but bounded by
// the execution timeout.
func (s *SettlementService) dispatch(ctx context.Context, id, actor string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ExecutionTimeout)
		defer cancel()
		s.executePayout(ectx, id, actor)
	}()
}

// executePayout drives a PROCESSING settlement to COMPLETED or FAILED. The advisory lock
// is released on every path, including when the final write fails; such a settlement
// stays PROCESSING and is picked up by RecoverStalledPayouts.
func (s *SettlementService) executePayout(ctx context.Context, id, actor string) {
	defer s.unlock(ctx, id, actor)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("settlement_id", id).Msg("payout execution panicked")
		}
	}()

	st, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("settlement_id", id).Msg("payout execution: load settlement")
		return
	}
	if st.Status != domain.SettlementProcessing {
		s.log.Warn().Str("settlement_id", id).Str("status", string(st.Status)).Msg("payout execution: settlement is not processing")
		return
	}

	if _, _, err := s.ledger.Reserve(ctx, s.mutation(st, holdTxnID(st), domain.CategorySettlement, actor, "hold for settlement "+st.Code)); err != nil && !isDuplicateTxn(err) {
		s.failPayout(ctx, st, actor, err, false, nil)
		return
	}

	account, err := s.accounts.GetByID(ctx, st.SellerAccountID)
	if err != nil {
		s.failPayout(ctx, st, actor, err, true, nil)
		return
	}
	if !account.IsGatewayLinked() {
		s.failPayout(ctx, st, actor, domain.NewValidationError(domain.CodeGatewayNotLinked, "seller_id", "seller has no payout fund account"), true, nil)
		return
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	res, err := s.gateway.CreatePayout(gctx, payout.PayoutRequest{
		SettlementID:          st.ID,
		Amount:                st.NetAmount,
		Currency:              st.Currency,
		DestinationAccountRef: account.FundAccountRef(),
		Mode:                  s.opts.PayoutMode,
		Purpose:               s.opts.PayoutPurpose,
		Narration:             "Settlement " + st.Code,
		IdempotencyKey:        idempotencyKey(st),
		Metadata: map[string]string{
			"settlement_code": st.Code,
			"seller_id":       st.SellerID,
		},
	})
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &payout.Error{Code: payout.CodeTimeout, Message: err.Error(), Retryable: true}
		}
		s.failPayout(ctx, st, actor, err, true, nil)
		return
	}
	if res.Status.IsFailure() {
		reason := res.FailureReason
		if reason == "" {
			reason = "payout " + string(res.Status)
		}
		gerr := &payout.Error{
			Code:      "PAYOUT_" + strings.ToUpper(string(res.Status)),
			Message:   reason,
			Retryable: res.Status == payout.StatusFailed,
		}
		s.failPayout(ctx, st, actor, gerr, true, res)
		return
	}
	s.completePayout(ctx, st, actor, res)
}

func (s *SettlementService) completePayout(ctx context.Context, st *models.Settlement, actor string, res *payout.PayoutResult) {
	log := s.log.With().Str("settlement_id", st.ID).Str("gateway_payout_id", res.GatewayPayoutID).Logger()
	if _, _, err := s.ledger.SettleReserved(ctx, s.mutation(st, payoutTxnID(st), domain.CategorySettlement, actor, "payout for settlement "+st.Code)); err != nil && !isDuplicateTxn(err) {
		log.Error().Err(err).Msg("payout sent but wallet settlement failed")
	}

	before := snapshot(st)
	expected := st.Version
	if err := st.MarkCompleted(res, s.now()); err != nil {
		log.Error().Err(err).Msg("payout sent but settlement could not complete")
		return
	}
	completed := settlementEvent(events.SettlementCompleted, actor, map[string]interface{}{
		"gateway_payout_id": res.GatewayPayoutID,
		"gateway_status":    res.Status,
		"utr":               res.UTR,
	})
	if err := s.save(ctx, st, expected, completed); err != nil {
		log.Error().Err(err).Msg("payout sent but completion was not persisted")
		return
	}

	log.Info().Str("net", st.NetAmount.StringFixed(2)).Str("gateway_status", st.GatewayStatus).Msg("settlement completed")
	s.recordAudit(ctx, "settlement", st.ID, "PAYOUT_COMPLETED", actor, before, st, nil)
}

// failPayout releases the hold when one was taken and records the failure.
func (s *SettlementService) failPayout(ctx context.Context, st *models.Settlement, actor string, cause error, reserved bool, res *payout.PayoutResult) {
	log := s.log.With().Str("settlement_id", st.ID).Logger()
	if reserved {
		if _, _, err := s.ledger.Release(ctx, s.mutation(st, releaseTxnID(st), domain.CategorySettlement, actor, "release hold for settlement "+st.Code)); err != nil && !isDuplicateTxn(err) {
			log.Error().Err(err).Msg("failed to release settlement hold")
		}
	}

	before := snapshot(st)
	expected := st.Version
	if res != nil {
		st.RecordGatewayResult(res)
	}
	retryable := domain.IsRetryable(cause)
	if err := st.MarkFailed(cause.Error(), domain.ErrorCode(cause), retryable, s.now(), s.opts.RetryBackoffBase); err != nil {
		log.Error().Err(err).Msg("settlement could not be marked failed")
		return
	}
	failed := settlementEvent(events.SettlementFailed, actor, map[string]interface{}{
		"failure_code":   st.FailureCode,
		"failure_reason": st.FailureReason,
		"retryable":      retryable,
		"retry_count":    st.RetryCount,
	})
	if err := s.save(ctx, st, expected, failed); err != nil {
		log.Error().Err(err).Msg("payout failure was not persisted")
		return
	}

	log.Warn().Err(cause).Bool("retryable", retryable).Int("attempt", st.RetryCount).Msg("settlement payout failed")
	s.recordAudit(ctx, "settlement", st.ID, "PAYOUT_FAILED", actor, before, st, map[string]interface{}{"code": st.FailureCode})
}
