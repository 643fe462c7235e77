package service

import (
	"context"
	"errors"
	"testing"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type brokenOutbox struct{}

func (brokenOutbox) Publish(ctx context.Context, e events.Event) error {
	return errors.New("outbox unavailable")
}

func (brokenOutbox) PublishTx(ctx context.Context, tx *gorm.DB, e events.Event) error {
	return errors.New("outbox unavailable")
}

func TestOutboxRowsCommitWithStateChanges(t *testing.T) {
	h := newHarness(t)
	outbox := repository.NewOutboxRepository(h.db)
	h.wire(events.NewOutboxPublisher(outbox))

	h.seedSeller("seller-1", "20000.00")
	st := h.create(scenarioA("seller-1"))
	_, err := h.svc.ProcessSettlement(h.ctx, st.ID, "FINANCE:fin-1")
	require.NoError(t, err)
	h.svc.Wait()
	require.Equal(t, domain.SettlementCompleted, h.reload(st.ID).Status)

	rows, err := outbox.FetchUndelivered(h.ctx, 100, 5)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.EventType]++
	}
	assert.Equal(t, 1, counts[string(events.WalletCredited)], "seed credit")
	assert.Equal(t, 1, counts[string(events.SettlementCreated)])
	assert.Equal(t, 1, counts[string(events.SettlementProcessingStarted)])
	assert.Equal(t, 1, counts[string(events.WalletDebited)])
	assert.Equal(t, 1, counts[string(events.SettlementCompleted)])
	assert.Zero(t, h.events.count(events.SettlementCreated), "nothing bypasses the outbox")
}

func TestOutboxFailureRollsBackStateChange(t *testing.T) {
	h := newHarness(t)
	h.seedSeller("seller-1", "20000.00")
	h.wire(brokenOutbox{})

	_, err := h.svc.CreateSettlement(h.ctx, scenarioA("seller-1"), "FINANCE:fin-1")
	require.Error(t, err)
	active, err := h.settlements.ListActiveBySeller(h.ctx, "seller-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, _, err = h.ledger.Credit(h.ctx, domain.WalletMutation{
		SellerID:      "seller-1",
		Amount:        d("50.00"),
		Category:      domain.CategorySale,
		TransactionID: "order-77",
	})
	require.Error(t, err)
	assert.True(t, h.wallet("seller-1").AvailableBalance.Equal(d("20000.00")))
	applied, err := h.ledger.HasTransaction(h.ctx, "order-77")
	require.NoError(t, err)
	assert.False(t, applied)
}
