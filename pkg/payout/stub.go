package payout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StubGateway is an in-memory provider for development. Every payout is processed immediately.
type StubGateway struct {
	mu            sync.Mutex
	payouts       map[string]*PayoutResult
	byIdempotency map[string]string
	webhookSecret string
}

func NewStubGateway(webhookSecret string) *StubGateway {
	return &StubGateway{
		payouts:       make(map[string]*PayoutResult),
		byIdempotency: make(map[string]string),
		webhookSecret: webhookSecret,
	}
}

func (s *StubGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Code: CodeTimeout, Message: err.Error(), Retryable: true}
	}
	if _, err := ToMinor(req.Amount, req.Currency); err != nil {
		return nil, err
	}
	if req.DestinationAccountRef == "" {
		return nil, &Error{Code: CodeBadRequest, Message: "fund account is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byIdempotency[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return s.payouts[id], nil
	}
	res := &PayoutResult{
		GatewayPayoutID: "stub_pout_" + uuid.NewString(),
		Status:          StatusProcessed,
		Amount:          req.Amount,
		Currency:        req.Currency,
		UTR:             fmt.Sprintf("STUB%s", req.SettlementID),
		Raw:             map[string]interface{}{"reference_id": req.SettlementID, "mode": req.Mode},
	}
	s.payouts[res.GatewayPayoutID] = res
	if req.IdempotencyKey != "" {
		s.byIdempotency[req.IdempotencyKey] = res.GatewayPayoutID
	}
	return res, nil
}

func (s *StubGateway) GetPayoutStatus(ctx context.Context, gatewayPayoutID string) (*PayoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.payouts[gatewayPayoutID]
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: gatewayPayoutID}
	}
	return res, nil
}

func (s *StubGateway) CreateFundAccount(ctx context.Context, req FundAccountRequest) (*FundAccountResult, error) {
	if req.SellerAccountID == "" {
		return nil, &Error{Code: CodeBadRequest, Message: "seller account id is required"}
	}
	return &FundAccountResult{
		FundAccountID: "stub_fa_" + req.SellerAccountID,
		ContactID:     "stub_cont_" + req.SellerAccountID,
	}, nil
}

func (s *StubGateway) VerifyAndParseWebhook(payload []byte, signature string) (*WebhookUpdate, error) {
	return VerifyAndParse(payload, signature, s.webhookSecret)
}
