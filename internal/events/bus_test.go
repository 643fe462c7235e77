package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBusDeliversToTypedAndWildcardHandlers(t *testing.T) {
	bus := NewBus(8, 1, zerolog.Nop())
	var typed, all int32
	bus.Subscribe(SettlementCreated, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&typed, 1)
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&all, 1)
		return nil
	})

	bus.Start(context.Background())
	require.NoError(t, bus.Publish(context.Background(), Event{Type: SettlementCreated, AggregateID: "s1"}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: WalletCredited, AggregateID: "w1"}))
	bus.Close()

	assert.Equal(t, int32(1), atomic.LoadInt32(&typed))
	assert.Equal(t, int32(2), atomic.LoadInt32(&all))
	assert.ErrorIs(t, bus.Publish(context.Background(), Event{Type: SettlementCreated}), ErrBusClosed)
}

func TestDispatchRetriesFailingHandler(t *testing.T) {
	bus := NewBus(1, 3, zerolog.Nop())
	calls := 0
	bus.Subscribe(SettlementFailed, func(ctx context.Context, e Event) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, bus.Dispatch(context.Background(), Event{Type: SettlementFailed}))
	assert.Equal(t, 3, calls)

	bus.Subscribe(SettlementCancelled, func(ctx context.Context, e Event) error { panic("boom") })
	assert.Error(t, bus.Dispatch(context.Background(), Event{Type: SettlementCancelled}))
}

type memStore struct {
	mu        sync.Mutex
	rows      []models.OutboxEvent
	delivered map[string]bool
}

func (m *memStore) Append(ctx context.Context, e *models.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memStore) AppendTx(ctx context.Context, tx *gorm.DB, e *models.OutboxEvent) error {
	return m.Append(ctx, e)
}

func (m *memStore) FetchUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, r := range m.rows {
		if !m.delivered[r.ID] && r.Attempts < maxAttempts && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered[id] = true
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Attempts++
		}
	}
	return nil
}

func TestOutboxRelayIsAtLeastOnce(t *testing.T) {
	store := &memStore{delivered: map[string]bool{}}
	pub := NewOutboxPublisher(store)
	require.NoError(t, pub.Publish(context.Background(), Event{Type: SettlementCompleted, AggregateID: "s1", Amount: "9300.00"}))
	require.Len(t, store.rows, 1)
	assert.NotEmpty(t, store.rows[0].ID)

	bus := NewBus(1, 1, zerolog.Nop())
	fail := true
	var seen []Event
	bus.Subscribe(SettlementCompleted, func(ctx context.Context, e Event) error {
		seen = append(seen, e)
		if fail {
			return errors.New("consumer down")
		}
		return nil
	})
	relay := NewRelay(store, bus, 10, 3, zerolog.Nop())

	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	fail = false
	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.Len(t, seen, 2)
	assert.Equal(t, seen[0].ID, seen[1].ID)
	assert.Equal(t, "9300.00", seen[1].Amount)
}

func TestOutboxPublisherJoinsCallerTransaction(t *testing.T) {
	store := &memStore{delivered: map[string]bool{}}
	var pub TxPublisher = NewOutboxPublisher(store)
	require.NoError(t, pub.PublishTx(context.Background(), nil, Event{Type: SettlementCancelled, AggregateID: "s2"}))
	require.Len(t, store.rows, 1)
	assert.Equal(t, string(SettlementCancelled), store.rows[0].EventType)
	assert.False(t, store.rows[0].OccurredAt.IsZero())
}
