package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/internal/validation"
)

// SettlementValidationService runs the validators against loaded state.
type SettlementValidationService struct {
	policy      validation.Policy
	accounts    SellerAccountStore
	wallets     WalletStore
	settlements SettlementStore
	now         func() time.Time
}

func NewSettlementValidationService(policy validation.Policy, accounts SellerAccountStore, wallets WalletStore, settlements SettlementStore) *SettlementValidationService {
	return &SettlementValidationService{
		policy:      policy,
		accounts:    accounts,
		wallets:     wallets,
		settlements: settlements,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (v *SettlementValidationService) WithClock(now func() time.Time) *SettlementValidationService {
	v.now = now
	return v
}

// CheckEligibility loads the seller's account and wallet and validates a new settlement
// request against them, including the one-active-settlement rule.
func (v *SettlementValidationService) CheckEligibility(ctx context.Context, req *domain.CreateSettlementRequest) (*models.SellerAccount, *models.SellerWallet, error) {
	if err := validation.ValidateCreation(v.policy, req, v.now()); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateAmounts(v.policy, req.AmountBreakdown); err != nil {
		return nil, nil, err
	}
	account, err := v.accounts.GetBySellerID(ctx, req.SellerID)
	if err != nil {
		return nil, nil, err
	}
	wallet, err := v.wallets.GetBySellerID(ctx, req.SellerID)
	if err != nil {
		return nil, nil, err
	}
	if !strings.EqualFold(wallet.Currency, req.Currency) {
		return nil, nil, domain.NewValidationError(domain.CodeCurrencyMismatch, "currency",
			"wallet currency is %s, request is %s", wallet.Currency, req.Currency)
	}
	if err := validation.ValidateEligibility(v.policy, account, wallet, req.Net); err != nil {
		return nil, nil, err
	}
	active, err := v.settlements.ListActiveBySeller(ctx, req.SellerID)
	if err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateNoActiveSettlements(req.SellerID, active); err != nil {
		return nil, nil, err
	}
	return account, wallet, nil
}

// CheckProcessingReadiness validates that s may be paid out now by actor.
func (v *SettlementValidationService) CheckProcessingReadiness(ctx context.Context, s *models.Settlement, actor string) (*models.SellerAccount, error) {
	now := v.now()
	if err := validation.ValidateProcessing(v.policy, s, actor, now); err != nil {
		return nil, err
	}
	if err := validation.ValidateHoldPeriod(v.policy, s.PeriodEnd, now); err != nil {
		return nil, err
	}
	account, err := v.accounts.GetByID(ctx, s.SellerAccountID)
	if err != nil {
		return nil, err
	}
	wallet, err := v.wallets.GetBySellerID(ctx, s.SellerID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateEligibility(v.policy, account, wallet, s.NetAmount); err != nil {
		return nil, err
	}
	return account, nil
}

type ComplianceIssue struct {
	Check   string `json:"check"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CheckCompliance reports every failed check for s instead of stopping at the first.
// The error is only for failures to load state.
func (v *SettlementValidationService) CheckCompliance(ctx context.Context, s *models.Settlement) ([]ComplianceIssue, error) {
	var issues []ComplianceIssue
	add := func(check string, err error) {
		if err != nil {
			issues = append(issues, ComplianceIssue{Check: check, Code: domain.ErrorCode(err), Message: err.Error()})
		}
	}

	add("amounts", validation.ValidateAmounts(v.policy, s.Breakdown()))
	add("hold_period", validation.ValidateHoldPeriod(v.policy, s.PeriodEnd, v.now()))

	account, err := v.accounts.GetByID(ctx, s.SellerAccountID)
	var nf *domain.NotFoundError
	switch {
	case errors.As(err, &nf):
		add("seller_account", err)
		return issues, nil
	case err != nil:
		return nil, err
	}
	if !account.IsActive() {
		add("seller_status", domain.NewValidationError(domain.CodeSellerInactive, "seller_id", "seller account is %s", account.Status))
	}
	if !account.IsVerified() {
		add("kyc", domain.NewValidationError(domain.CodeSellerNotVerified, "seller_id", "seller KYC is %s", account.KYCStatus))
	}
	if !account.IsGatewayLinked() {
		add("gateway_link", domain.NewValidationError(domain.CodeGatewayNotLinked, "seller_id", "seller has no payout fund account"))
	}
	if s.NetAmount.LessThan(v.policy.MinimumPayout) {
		add("minimum_payout", domain.NewValidationError(domain.CodeBelowMinimum, "net",
			"amount %s is below the minimum payout %s", s.NetAmount.StringFixed(2), v.policy.MinimumPayout.StringFixed(2)))
	}
	return issues, nil
}
