// Package events carries domain events from the settlement engine to its consumers.
// Delivery is at-least-once; consumers must tolerate duplicates by Event.ID.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	SettlementCreated           Type = "SettlementCreated"
	SettlementProcessingStarted Type = "SettlementProcessingStarted"
	SettlementCompleted         Type = "SettlementCompleted"
	SettlementFailed            Type = "SettlementFailed"
	SettlementCancelled         Type = "SettlementCancelled"
	SettlementReconciled        Type = "SettlementReconciled"
	SettlementPayoutReversed    Type = "SettlementPayoutReversed"
	SettlementBatchStarted      Type = "SettlementBatchStarted"
	SettlementBatchCompleted    Type = "SettlementBatchCompleted"
	WalletCredited              Type = "WalletCredited"
	WalletDebited               Type = "WalletDebited"
)

type Event struct {
	ID          string                 `json:"id"`
	Type        Type                   `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	SellerID    string                 `json:"seller_id,omitempty"`
	Amount      string                 `json:"amount,omitempty"`
	Currency    string                 `json:"currency,omitempty"`
	Actor       string                 `json:"actor,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Publisher is fire-and-forget from the caller's point of view.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler func(ctx context.Context, e Event) error

func (e *Event) ensureMeta(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
}
