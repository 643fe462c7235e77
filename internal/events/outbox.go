package events

import (
	"context"
	"encoding/json"
	"time"

	"marketplace/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TxPublisher is a Publisher that can write an event inside the caller's database
// transaction, so the event exists if and only if the state change it describes committed.
type TxPublisher interface {
	Publisher
	PublishTx(ctx context.Context, tx *gorm.DB, e Event) error
}

type OutboxStore interface {
	Append(ctx context.Context, e *models.OutboxEvent) error
	AppendTx(ctx context.Context, tx *gorm.DB, e *models.OutboxEvent) error
	FetchUndelivered(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// OutboxPublisher persists events so they survive a crash between the state change
// and delivery. A Relay forwards them later.
type OutboxPublisher struct {
	store OutboxStore
	now   func() time.Time
}

func NewOutboxPublisher(store OutboxStore) *OutboxPublisher {
	return &OutboxPublisher{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (p *OutboxPublisher) Publish(ctx context.Context, e Event) error {
	row, err := p.row(e)
	if err != nil {
		return err
	}
	return p.store.Append(ctx, row)
}

// PublishTx appends e through tx; it is delivered only if tx commits.
func (p *OutboxPublisher) PublishTx(ctx context.Context, tx *gorm.DB, e Event) error {
	row, err := p.row(e)
	if err != nil {
		return err
	}
	return p.store.AppendTx(ctx, tx, row)
}

func (p *OutboxPublisher) row(e Event) (*models.OutboxEvent, error) {
	e.ensureMeta(p.now())
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &models.OutboxEvent{
		ID:          e.ID,
		EventType:   string(e.Type),
		AggregateID: e.AggregateID,
		Payload:     string(payload),
		OccurredAt:  e.OccurredAt,
	}, nil
}

type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

type Relay struct {
	store       OutboxStore
	dispatcher  Dispatcher
	batchSize   int
	maxAttempts int
	log         zerolog.Logger
	now         func() time.Time
}

func NewRelay(store OutboxStore, dispatcher Dispatcher, batchSize, maxAttempts int, log zerolog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Relay{
		store:       store,
		dispatcher:  dispatcher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "outbox_relay").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce forwards one batch of undelivered events and returns how many were delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	rows, err := r.store.FetchUndelivered(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, row := range rows {
		var e Event
		if err := json.Unmarshal([]byte(row.Payload), &e); err != nil {
			r.log.Error().Err(err).Str("outbox_id", row.ID).Msg("undecodable outbox event")
			_ = r.store.MarkFailed(ctx, row.ID, err.Error())
			continue
		}
		if err := r.dispatcher.Dispatch(ctx, e); err != nil {
			r.log.Warn().Err(err).Str("outbox_id", row.ID).Int("attempts", row.Attempts+1).Msg("outbox delivery failed")
			if mErr := r.store.MarkFailed(ctx, row.ID, err.Error()); mErr != nil {
				return delivered, mErr
			}
			continue
		}
		if err := r.store.MarkDelivered(ctx, row.ID, r.now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
