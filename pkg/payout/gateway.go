// Package payout wraps the external payout provider behind a narrow contract.
// Amounts are major units on this side of the boundary and minor units on the wire.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
	StatusReversed   Status = "reversed"
	StatusFailed     Status = "failed"
)

func (s Status) IsProcessed() bool { return s == StatusProcessed }

func (s Status) IsFailure() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusReversed, StatusFailed:
		return true
	}
	return false
}

// IsFinal reports whether the provider will not move the payout again.
func (s Status) IsFinal() bool { return s.IsProcessed() || s.IsFailure() }

type PayoutRequest struct {
	SettlementID          string
	Amount                decimal.Decimal
	Currency              string
	DestinationAccountRef string // provider fund account id
	Mode                  string
	Purpose               string
	Narration             string
	IdempotencyKey        string
	Metadata              map[string]string
}

type PayoutResult struct {
	GatewayPayoutID string
	Status          Status
	Amount          decimal.Decimal
	Currency        string
	UTR             string
	FailureReason   string
	Raw             map[string]interface{}
}

type FundAccountRequest struct {
	SellerAccountID   string
	Name              string
	Email             string
	Phone             string
	AccountHolderName string
	IFSC              string
	BankAccountNumber string
}

type FundAccountResult struct {
	FundAccountID string
	ContactID     string
}

// WebhookUpdate is a payout status change reported by the provider.
type WebhookUpdate struct {
	Event           string
	GatewayPayoutID string
	ReferenceID     string
	Status          Status
	Amount          decimal.Decimal
	Currency        string
	UTR             string
	FailureReason   string
	Raw             map[string]interface{}
}

type Gateway interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	GetPayoutStatus(ctx context.Context, gatewayPayoutID string) (*PayoutResult, error)
	CreateFundAccount(ctx context.Context, req FundAccountRequest) (*FundAccountResult, error)
	// VerifyAndParseWebhook returns (nil, nil) for authentic events that do not concern payouts.
	VerifyAndParseWebhook(payload []byte, signature string) (*WebhookUpdate, error)
}

// Error is a provider failure. Retryable is false when resubmitting the same request cannot succeed.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("payout gateway error %s: %s", e.Code, e.Message)
}

const (
	CodeTimeout          = "GATEWAY_TIMEOUT"
	CodeBadRequest       = "BAD_REQUEST_ERROR"
	CodeServer           = "SERVER_ERROR"
	CodeInvalidAmount    = "INVALID_AMOUNT"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeNotFound         = "PAYOUT_NOT_FOUND"
)

var ErrInvalidSignature = &Error{Code: CodeInvalidSignature, Message: "webhook signature mismatch"}

// IsRetryable reports whether err is a gateway error worth retrying. Unknown errors are treated as transient.
func IsRetryable(err error) bool {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Retryable
	}
	return err != nil
}
