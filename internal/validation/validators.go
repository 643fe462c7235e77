// Package validation holds the stateless settlement rule checks. Every check returns
// a typed error from the domain taxonomy naming the violated rule.
package validation

import (
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"
	"marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

// ValidateCreation checks the request shape and period rules.
func ValidateCreation(p Policy, req *domain.CreateSettlementRequest, now time.Time) error {
	switch {
	case req.SellerID == "":
		return domain.NewValidationError(domain.CodeRequired, "seller_id", "seller id is required")
	case req.PeriodStart.IsZero():
		return domain.NewValidationError(domain.CodeRequired, "period_start", "period start is required")
	case req.PeriodEnd.IsZero():
		return domain.NewValidationError(domain.CodeRequired, "period_end", "period end is required")
	case req.Currency == "":
		return domain.NewValidationError(domain.CodeRequired, "currency", "currency is required")
	}
	if err := ValidatePeriod(p, req.PeriodStart, req.PeriodEnd, now); err != nil {
		return err
	}
	if !p.SupportsCurrency(req.Currency) {
		return domain.NewValidationError(domain.CodeUnsupportedCurrency, "currency", "currency %s is not supported", req.Currency)
	}
	if req.SettlementDate != nil && req.SettlementDate.After(now.Add(p.MaxSettlementAhead)) {
		return domain.NewValidationError(domain.CodeSettlementDate, "settlement_date",
			"settlement date may be at most %d days ahead", int(p.MaxSettlementAhead/day))
	}
	return nil
}

// ValidatePeriod checks a half-open [start, end) period that has already ended.
func ValidatePeriod(p Policy, start, end, now time.Time) error {
	if !start.Before(end) {
		return domain.NewValidationError(domain.CodeInvalidPeriod, "period_start", "period start must be before period end")
	}
	if end.After(now) {
		return domain.NewValidationError(domain.CodePeriodInFuture, "period_end", "period end must not be in the future")
	}
	length := end.Sub(start)
	if length < p.MinPeriod || length > p.MaxPeriod {
		return domain.NewValidationError(domain.CodePeriodLength, "period_end",
			"period must span between %d and %d days", int(p.MinPeriod/day), int(p.MaxPeriod/day))
	}
	return nil
}

// ValidateAmounts checks every money field and that net reconciles with the breakdown.
// Adjustment is the only field allowed to be negative.
func ValidateAmounts(p Policy, b domain.AmountBreakdown) error {
	fields := []struct {
		name        string
		value       decimal.Decimal
		allowSigned bool
	}{
		{"gross", b.Gross, false},
		{"commission", b.Commission, false},
		{"platform_fee", b.PlatformFee, false},
		{"tax", b.Tax, false},
		{"adjustment", b.Adjustment, true},
		{"net", b.Net, false},
	}
	for _, f := range fields {
		if err := validateAmount(p, f.name, f.value, f.allowSigned); err != nil {
			return err
		}
	}
	expected := b.ExpectedNet()
	if !money.WithinTolerance(b.Net, expected) {
		return domain.NewValidationError(domain.CodeNetMismatch, "net",
			"net %s does not match breakdown %s", b.Net.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

func validateAmount(p Policy, field string, v decimal.Decimal, allowSigned bool) error {
	if v.IsNegative() && !allowSigned {
		return domain.NewValidationError(domain.CodeNegativeAmount, field, "%s must not be negative", field)
	}
	if !money.HasAtMostTwoDecimals(v) {
		return domain.NewValidationError(domain.CodeTooManyDecimals, field, "%s has more than two decimal places", field)
	}
	if v.Abs().GreaterThan(p.MaxAmount) {
		return domain.NewValidationError(domain.CodeAmountTooLarge, field, "%s exceeds %s", field, p.MaxAmount.StringFixed(2))
	}
	return nil
}

// ValidateProcessing checks that actor may drive s through a payout now.
func ValidateProcessing(p Policy, s *models.Settlement, actor string, now time.Time) error {
	if !s.Status.IsProcessable() {
		return &domain.InvalidStateError{Entity: "settlement", ID: s.ID, State: string(s.Status), Message: "settlement is not processable"}
	}
	if s.LockedByOther(actor, now, p.LockTimeout) {
		return domain.NewConflict(domain.ConflictAlreadyLocked, "settlement %s is locked by %s", s.ID, *s.LockedBy)
	}
	if !s.NetAmount.IsPositive() {
		return domain.NewValidationError(domain.CodeNonPositiveNet, "net", "net amount must be positive")
	}
	if !s.BreakdownReconciles() {
		return domain.NewValidationError(domain.CodeNetMismatch, "net", "net amount no longer reconciles with its breakdown")
	}
	return nil
}

// ValidateEligibility checks the seller account and wallet can back a payout of amount.
func ValidateEligibility(p Policy, account *models.SellerAccount, wallet *models.SellerWallet, amount decimal.Decimal) error {
	switch {
	case !account.IsActive():
		return domain.NewValidationError(domain.CodeSellerInactive, "seller_id", "seller account is %s", account.Status)
	case !account.IsVerified():
		return domain.NewValidationError(domain.CodeSellerNotVerified, "seller_id", "seller KYC is %s", account.KYCStatus)
	case !account.IsGatewayLinked():
		return domain.NewValidationError(domain.CodeGatewayNotLinked, "seller_id", "seller has no payout fund account")
	}
	if amount.LessThan(p.MinimumPayout) {
		return domain.NewValidationError(domain.CodeBelowMinimum, "net",
			"amount %s is below the minimum payout %s", amount.StringFixed(2), p.MinimumPayout.StringFixed(2))
	}
	if wallet.SettleableAmount().LessThan(amount) {
		return domain.NewValidationError(domain.CodeInsufficientSettlable, "net",
			"settleable balance %s is less than %s", wallet.SettleableAmount().StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

func ValidateNoActiveSettlements(sellerID string, active []models.Settlement) error {
	if len(active) == 0 {
		return nil
	}
	return domain.NewConflict(domain.ConflictActiveSettlement,
		"seller %s already has active settlement %s (%s)", sellerID, active[0].Code, active[0].Status)
}

// ValidateHoldPeriod requires now >= periodEnd + hold period.
func ValidateHoldPeriod(p Policy, periodEnd, now time.Time) error {
	clearsAt := periodEnd.Add(p.HoldPeriod)
	if now.Before(clearsAt) {
		return domain.NewValidationError(domain.CodeHoldPeriod, "period_end",
			"hold period of %d days ends at %s", int(p.HoldPeriod/day), clearsAt.Format(time.RFC3339))
	}
	return nil
}

func ValidateBatch(p Policy, req *domain.BulkSettlementRequest, now time.Time) error {
	if len(req.SellerIDs) == 0 {
		return domain.NewValidationError(domain.CodeRequired, "seller_ids", "at least one seller id is required")
	}
	if req.BatchSize < 1 || req.BatchSize > p.MaxBatchSize {
		return domain.NewValidationError(domain.CodeBatchSize, "batch_size", "batch size must be between 1 and %d", p.MaxBatchSize)
	}
	return ValidatePeriod(p, req.PeriodStart, req.PeriodEnd, now)
}
