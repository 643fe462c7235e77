package service

import (
	"context"
	"errors"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/pkg/payout"
)

type WebhookOutcome string

const (
	WebhookApplied  WebhookOutcome = "applied"
	WebhookIgnored  WebhookOutcome = "ignored"
	WebhookDeferred WebhookOutcome = "deferred"
)

// SyncPayoutStatus polls the gateway for the settlement's payout and applies any change.
func (s *SettlementService) SyncPayoutStatus(ctx context.Context, id, actor string) (*models.Settlement, error) {
	st, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.GatewayPayoutID == nil {
		return nil, &domain.InvalidStateError{Entity: "settlement", ID: st.ID, State: string(st.Status), Message: "settlement has no gateway payout"}
	}
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	res, err := s.gateway.GetPayoutStatus(gctx, *st.GatewayPayoutID)
	if err != nil {
		return nil, err
	}
	return s.applyGatewayStatus(ctx, st, res, actor)
}

// HandlePayoutWebhook verifies and applies a provider callback. Callbacks for unknown
// payouts are acknowledged and ignored.
func (s *SettlementService) HandlePayoutWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	update, err := s.gateway.VerifyAndParseWebhook(payload, signature)
	if err != nil {
		return "", err
	}
	if update == nil {
		return WebhookIgnored, nil
	}
	log := s.log.With().Str("gateway_payout_id", update.GatewayPayoutID).Str("event", update.Event).Logger()

	st, err := s.settlements.GetByGatewayPayoutID(ctx, update.GatewayPayoutID)
	if errors.Is(err, domain.ErrNotFound) && update.ReferenceID != "" {
		st, err = s.settlements.GetByID(ctx, update.ReferenceID)
	}
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Msg("webhook for unknown payout ignored")
		return WebhookIgnored, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case st.Status == domain.SettlementProcessing:
		return WebhookDeferred, nil
	case st.Status != domain.SettlementCompleted:
		return WebhookIgnored, nil
	case st.GatewayPayoutID != nil && *st.GatewayPayoutID != update.GatewayPayoutID:
		log.Info().Str("settlement_id", st.ID).Msg("webhook for superseded payout attempt ignored")
		return WebhookIgnored, nil
	}

	res := &payout.PayoutResult{
		GatewayPayoutID: update.GatewayPayoutID,
		Status:          update.Status,
		Amount:          update.Amount,
		Currency:        update.Currency,
		UTR:             update.UTR,
		FailureReason:   update.FailureReason,
		Raw:             update.Raw,
	}
	if _, err := s.applyGatewayStatus(ctx, st, res, domain.ActorPayoutWebhook); err != nil {
		return "", err
	}
	return WebhookApplied, nil
}

// applyGatewayStatus records a later gateway status on a COMPLETED settlement. A payout
// the gateway reverses or rejects after submission credits the net back to the wallet;
// the settlement itself stays COMPLETED. Settlements in other states are left alone.
func (s *SettlementService) applyGatewayStatus(ctx context.Context, st *models.Settlement, res *payout.PayoutResult, actor string) (*models.Settlement, error) {
	if st.Status != domain.SettlementCompleted {
		return st, nil
	}
	prev := payout.Status(st.GatewayStatus)
	if prev == res.Status || prev.IsFailure() {
		return st, nil
	}

	before := snapshot(st)
	expected := st.Version
	st.ApplyGatewayUpdate(res)
	reversed := res.Status.IsFailure()
	if reversed {
		if _, _, err := s.ledger.Credit(ctx, s.mutation(st, reversalTxnID(st), domain.CategoryRefund, actor, "payout reversed for settlement "+st.Code)); err != nil && !isDuplicateTxn(err) {
			return nil, err
		}
	}
	var evs []pendingEvent
	if reversed {
		evs = append(evs, settlementEvent(events.SettlementPayoutReversed, actor, map[string]interface{}{
			"gateway_status": res.Status,
			"reason":         res.FailureReason,
		}))
	}
	if err := s.save(ctx, st, expected, evs...); err != nil {
		return nil, err
	}

	if reversed {
		s.log.Warn().Str("settlement_id", st.ID).Str("gateway_status", st.GatewayStatus).Msg("payout reversed by gateway")
	}
	s.recordAudit(ctx, "settlement", st.ID, "GATEWAY_STATUS", actor, before, st, map[string]interface{}{
		"from": prev,
		"to":   res.Status,
	})
	return st, nil
}
