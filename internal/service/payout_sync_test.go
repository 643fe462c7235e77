package service

import (
	"encoding/json"
	"testing"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/pkg/payout"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody(t *testing.T, event, payoutID, referenceID, status string, amountMinor int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"entity": "event",
		"event":  event,
		"payload": map[string]interface{}{
			"payout": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":             payoutID,
					"amount":         amountMinor,
					"currency":       "INR",
					"status":         status,
					"reference_id":   referenceID,
					"failure_reason": "beneficiary bank rejected",
				},
			},
		},
	})
	require.NoError(t, err)
	return body, payout.Sign(body, testWebhookSecret)
}

func completedSettlement(t *testing.T, h *harness, sellerID string) *models.Settlement {
	t.Helper()
	h.seedSeller(sellerID, "20000.00")
	st := h.create(scenarioA(sellerID))
	_, err := h.svc.ProcessSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)
	h.svc.Wait()
	done := h.reload(st.ID)
	require.Equal(t, domain.SettlementCompleted, done.Status)
	return done
}

func TestWebhookReversalCreditsWalletOnce(t *testing.T) {
	h := newHarness(t)
	st := completedSettlement(t, h, "seller-1")
	require.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("10700.00")))

	body, sig := webhookBody(t, payout.EventPayoutReversed, *st.GatewayPayoutID, st.ID, "reversed", 930000)
	out, err := h.svc.HandlePayoutWebhook(h.ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, out)

	reversed := h.reload(st.ID)
	assert.Equal(t, domain.SettlementCompleted, reversed.Status)
	assert.Equal(t, string(payout.StatusReversed), reversed.GatewayStatus)
	assert.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("20000.00")))
	assert.Equal(t, 1, h.events.count(events.SettlementPayoutReversed))

	out, err = h.svc.HandlePayoutWebhook(h.ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, out)
	assert.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("20000.00")), "replay must not credit twice")
	assert.Equal(t, 1, h.events.count(events.SettlementPayoutReversed))

	_, err = h.svc.ReconcileSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	body, _ := webhookBody(t, payout.EventPayoutProcessed, "pout_1", "", "processed", 100)

	_, err := h.svc.HandlePayoutWebhook(h.ctx, body, "deadbeef")
	require.ErrorIs(t, err, payout.ErrInvalidSignature)
}

func TestWebhookForUnknownPayoutIsIgnored(t *testing.T) {
	h := newHarness(t)
	body, sig := webhookBody(t, payout.EventPayoutProcessed, "pout_404", "nope", "processed", 100)

	out, err := h.svc.HandlePayoutWebhook(h.ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, out)
}

func TestWebhookDuringProcessingIsDeferred(t *testing.T) {
	h := newHarness(t)
	h.seedSeller("seller-1", "20000.00")
	st := h.create(scenarioA("seller-1"))
	block := make(chan struct{})
	h.gateway.block = block

	_, err := h.svc.ProcessSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)

	body, sig := webhookBody(t, payout.EventPayoutProcessed, "pout_1", st.ID, "processed", 930000)
	out, err := h.svc.HandlePayoutWebhook(h.ctx, body, sig)
	close(block)
	h.svc.Wait()
	require.NoError(t, err)
	assert.Equal(t, WebhookDeferred, out)
	assert.Equal(t, domain.SettlementCompleted, h.reload(st.ID).Status)
}

func TestGatewaySyncSweepFinalisesPendingPayouts(t *testing.T) {
	h := newHarness(t)
	h.gateway.status = payout.StatusProcessing
	st := completedSettlement(t, h, "seller-1")
	assert.Equal(t, string(payout.StatusProcessing), st.GatewayStatus)

	_, err := h.svc.ReconcileSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.ErrorIs(t, err, domain.ErrInvalidState, "gateway has not processed the payout yet")

	h.gateway.setStatus(*st.GatewayPayoutID, payout.StatusProcessed)
	res, err := h.svc.RunGatewaySyncSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 1, Succeeded: 1}, res)
	assert.Equal(t, string(payout.StatusProcessed), h.reload(st.ID).GatewayStatus)

	res, err = h.svc.RunGatewaySyncSweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Found)

	rec, err := h.svc.ReconcileSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)
	assert.True(t, rec.IsReconciled)
}

func TestSyncPayoutStatusAppliesGatewayFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.status = payout.StatusQueued
	st := completedSettlement(t, h, "seller-1")

	h.gateway.setStatus(*st.GatewayPayoutID, payout.StatusFailed)
	synced, err := h.svc.SyncPayoutStatus(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)
	assert.Equal(t, string(payout.StatusFailed), synced.GatewayStatus)
	assert.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("20000.00")))

	_, err = h.svc.SyncPayoutStatus(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)
	assert.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("20000.00")))
}

func TestSyncPayoutStatusWithoutPayout(t *testing.T) {
	h := newHarness(t)
	h.seedSeller("seller-1", "20000.00")
	st := h.create(scenarioA("seller-1"))

	_, err := h.svc.SyncPayoutStatus(h.ctx, st.ID, "FINANCE:fin-1")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}
