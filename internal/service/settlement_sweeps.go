package service

import (
	"context"
	"errors"

	"marketplace/internal/domain"
	"marketplace/pkg/payout"
)

// SweepResult counts what one sweep run did. Skipped items were locked by someone else
// or no longer qualified when reloaded.
type SweepResult struct {
	Found     int `json:"found"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunPendingSweep processes every PENDING settlement whose hold period has elapsed.
// Individual failures are logged and counted; they never stop the sweep.
func (s *SettlementService) RunPendingSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	cutoff := s.now().Add(-s.policy.HoldPeriod)
	list, err := s.settlements.FindPendingPastHold(ctx, cutoff, s.opts.SweepLimit)
	if err != nil {
		return res, err
	}
	res.Found = len(list)
	for _, st := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.ProcessSettlement(ctx, st.ID, domain.ActorPendingSweep); err != nil {
			if errors.Is(err, domain.ErrAlreadyLocked) || errors.Is(err, domain.ErrInvalidState) {
				res.Skipped++
				continue
			}
			res.Failed++
			s.log.Warn().Err(err).Str("settlement_id", st.ID).Str("code", domain.ErrorCode(err)).Msg("pending sweep: settlement not processed")
			continue
		}
		res.Succeeded++
	}
	s.log.Info().Int("found", res.Found).Int("processed", res.Succeeded).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("pending sweep finished")
	return res, nil
}

// RunRetrySweep retries FAILED settlements whose failure is retryable and whose backoff
// has elapsed.
func (s *SettlementService) RunRetrySweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	list, err := s.settlements.FindRetryCandidates(ctx, now, s.opts.MaxRetries, s.opts.SweepLimit)
	if err != nil {
		return res, err
	}
	res.Found = len(list)
	for i := range list {
		st := &list[i]
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !st.ShouldRetry(s.opts.MaxRetries, now) {
			res.Skipped++
			continue
		}
		if _, err := s.RetrySettlement(ctx, st.ID, domain.ActorRetrySweep); err != nil {
			if errors.Is(err, domain.ErrAlreadyLocked) || errors.Is(err, domain.ErrInvalidState) {
				res.Skipped++
				continue
			}
			res.Failed++
			s.log.Warn().Err(err).Str("settlement_id", st.ID).Str("code", domain.ErrorCode(err)).Msg("retry sweep: settlement not retried")
			continue
		}
		res.Succeeded++
	}
	s.log.Info().Int("found", res.Found).Int("retried", res.Succeeded).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("retry sweep finished")
	return res, nil
}

// RecoverStalledPayouts re-drives PROCESSING settlements whose executor died or whose
// outcome could not be written. The attempt keeps its gateway idempotency key, so a payout
// that already went out is returned by the gateway rather than sent again.
func (s *SettlementService) RecoverStalledPayouts(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	list, err := s.settlements.FindStalledProcessing(ctx, s.opts.SweepLimit)
	if err != nil {
		return res, err
	}
	res.Found = len(list)
	for _, item := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st, err := s.settlements.LockForProcessing(ctx, item.ID, domain.ActorPayoutWorker, domain.SettlementProcessing)
		if err != nil {
			res.Skipped++
			continue
		}
		released, err := s.ledger.HasTransaction(ctx, releaseTxnID(st))
		if err != nil {
			s.unlock(ctx, st.ID, domain.ActorPayoutWorker)
			res.Failed++
			s.log.Warn().Err(err).Str("settlement_id", st.ID).Msg("stalled payout: ledger lookup failed")
			continue
		}
		if released {
			// the attempt already failed and gave the hold back; only the write was lost
			s.failPayout(ctx, st, domain.ActorPayoutWorker, &payout.Error{
				Code:      "PAYOUT_INTERRUPTED",
				Message:   "payout attempt failed before its outcome was recorded",
				Retryable: true,
			}, false, nil)
			s.unlock(ctx, st.ID, domain.ActorPayoutWorker)
			res.Succeeded++
			continue
		}
		s.log.Warn().Str("settlement_id", st.ID).Int("attempt", st.RetryCount).Msg("re-driving stalled payout")
		s.dispatch(ctx, st.ID, domain.ActorPayoutWorker)
		res.Succeeded++
	}
	return res, nil
}

// RunGatewaySyncSweep polls the gateway for completed payouts it has not finalised.
func (s *SettlementService) RunGatewaySyncSweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	list, err := s.settlements.FindAwaitingGateway(ctx, s.opts.SweepLimit)
	if err != nil {
		return res, err
	}
	res.Found = len(list)
	for _, st := range list {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.SyncPayoutStatus(ctx, st.ID, domain.ActorPayoutWorker); err != nil {
			res.Failed++
			s.log.Warn().Err(err).Str("settlement_id", st.ID).Msg("gateway sync failed")
			continue
		}
		res.Succeeded++
	}
	return res, nil
}
