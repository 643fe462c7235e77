package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"marketplace/config"
	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/internal/validation"
	"marketplace/pkg/money"
	"marketplace/pkg/payout"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Options are the orchestration knobs that are not validation policy.
type Options struct {
	MaxRetries       int
	RetryBackoffBase time.Duration
	GatewayTimeout   time.Duration
	ExecutionTimeout time.Duration
	SweepLimit       int
	DefaultCurrency  string
	PayoutMode       string
	PayoutPurpose    string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxRetries:       cfg.Settlement.MaxRetries,
		RetryBackoffBase: cfg.Settlement.RetryBackoffBase,
		GatewayTimeout:   cfg.Payout.Timeout,
		ExecutionTimeout: executionTimeout(cfg.Settlement.LockTimeout),
		SweepLimit:       cfg.Settlement.SweepLimit,
		DefaultCurrency:  cfg.Settlement.DefaultCurrency,
		PayoutMode:       cfg.Payout.Mode,
		PayoutPurpose:    cfg.Payout.Purpose,
	}
}

// executionTimeout bounds one payout attempt well inside the lock timeout, so an attempt
// is abandoned before its lock can be taken over as stale.
func executionTimeout(lockTimeout time.Duration) time.Duration {
	return lockTimeout * 4 / 5
}

// Deps are the collaborators of SettlementService.
type Deps struct {
	Settlements SettlementStore
	Accounts    SellerAccountStore
	Ledger      *WalletLedger
	Validator   *SettlementValidationService
	Jobs        *JobTracker
	Calculator  EarningsCalculator
	Gateway     payout.Gateway
	Publisher   events.Publisher
	Audit       AuditSink
}

// SettlementService orchestrates the settlement lifecycle: creation, processing and payout,
// cancellation, retries, reconciliation, sweeps and bulk batches.
type SettlementService struct {
	settlements SettlementStore
	accounts    SellerAccountStore
	ledger      *WalletLedger
	validator   *SettlementValidationService
	jobs        *JobTracker
	calculator  EarningsCalculator
	gateway     payout.Gateway
	publisher   events.Publisher
	audit       AuditSink

	policy validation.Policy
	opts   Options
	log    zerolog.Logger
	now    func() time.Time

	inflight sync.WaitGroup
}

func NewSettlementService(deps Deps, policy validation.Policy, opts Options, log zerolog.Logger) *SettlementService {
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 30 * time.Second
	}
	if opts.ExecutionTimeout <= 0 || (policy.LockTimeout > 0 && opts.ExecutionTimeout >= policy.LockTimeout) {
		lock := policy.LockTimeout
		if lock <= 0 {
			lock = 15 * time.Minute
		}
		opts.ExecutionTimeout = executionTimeout(lock)
	}
	if opts.SweepLimit <= 0 {
		opts.SweepLimit = 500
	}
	return &SettlementService{
		settlements: deps.Settlements,
		accounts:    deps.Accounts,
		ledger:      deps.Ledger,
		validator:   deps.Validator,
		jobs:        deps.Jobs,
		calculator:  deps.Calculator,
		gateway:     deps.Gateway,
		publisher:   deps.Publisher,
		audit:       deps.Audit,
		policy:      policy,
		opts:        opts,
		log:         log.With().Str("component", "settlement_service").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *SettlementService) WithClock(now func() time.Time) *SettlementService {
	s.now = now
	return s
}

// CreateSettlement validates req and persists a PENDING settlement.
func (s *SettlementService) CreateSettlement(ctx context.Context, req *domain.CreateSettlementRequest, actor string) (*models.Settlement, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	account, _, err := s.validator.CheckEligibility(ctx, req)
	if err != nil {
		return nil, err
	}

	st := &models.Settlement{
		SellerID:          req.SellerID,
		SellerAccountID:   account.ID,
		PeriodStart:       req.PeriodStart.UTC(),
		PeriodEnd:         req.PeriodEnd.UTC(),
		SettlementDate:    req.SettlementDate,
		GrossAmount:       money.Round2(req.Gross),
		CommissionAmount:  money.Round2(req.Commission),
		PlatformFeeAmount: money.Round2(req.PlatformFee),
		TaxAmount:         money.Round2(req.Tax),
		AdjustmentAmount:  money.Round2(req.Adjustment),
		NetAmount:         money.Round2(req.Net),
		Currency:          req.Currency,
		Status:            domain.SettlementPending,
		CreatedBy:         actor,
		Notes:             req.Notes,
	}
	// The code is random; only a collision with an existing code is retried.
	var after func()
	for attempt := 0; ; attempt++ {
		st.ID = ""
		st.Code = generateCode(s.now())
		var hooks []func(tx *gorm.DB) error
		hooks, after = s.eventsFor(ctx, st, settlementEvent(events.SettlementCreated, actor, map[string]interface{}{
			"code":         st.Code,
			"period_start": st.PeriodStart,
			"period_end":   st.PeriodEnd,
		}))
		err = s.settlements.Create(ctx, st, hooks...)
		if err == nil || !errors.Is(err, domain.ErrDuplicateCode) || attempt == 2 {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("settlement_id", st.ID).
		Str("seller_id", st.SellerID).
		Str("net", st.NetAmount.StringFixed(2)).
		Msg("settlement created")
	after()
	s.recordAudit(ctx, "settlement", st.ID, "CREATE", actor, nil, st, nil)
	return st, nil
}

func generateCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("STL-%s-%s", now.Format("20060102150405"), suffix)
}

func (s *SettlementService) GetSettlement(ctx context.Context, id string) (*models.Settlement, error) {
	return s.settlements.GetByID(ctx, id)
}

func (s *SettlementService) GetSettlementByCode(ctx context.Context, code string) (*models.Settlement, error) {
	return s.settlements.GetByCode(ctx, code)
}

func (s *SettlementService) ListSettlements(ctx context.Context, f domain.SettlementFilter) ([]models.Settlement, int64, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, 0, domain.NewValidationError(domain.CodeInvalidStatus, "status", "unknown status %q", st)
		}
	}
	return s.settlements.List(ctx, f)
}

func (s *SettlementService) Summary(ctx context.Context, from, to *time.Time) (*domain.SettlementSummary, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return nil, domain.NewValidationError(domain.CodeInvalidPeriod, "from", "from must be before to")
	}
	return s.settlements.Summarize(ctx, from, to)
}

// CheckCompliance lists the checks settlement id currently fails.
func (s *SettlementService) CheckCompliance(ctx context.Context, id string) ([]ComplianceIssue, error) {
	st, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.validator.CheckCompliance(ctx, st)
}

func (s *SettlementService) GetJob(ctx context.Context, id string) (*models.SettlementJob, error) {
	return s.jobs.Get(ctx, id)
}

func (s *SettlementService) ListJobs(ctx context.Context, page, pageSize int) ([]models.SettlementJob, int64, error) {
	return s.jobs.List(ctx, page, pageSize)
}

// LinkSellerPayoutAccount registers the seller's bank account with the gateway.
// Already linked accounts are returned unchanged.
func (s *SettlementService) LinkSellerPayoutAccount(ctx context.Context, sellerAccountID, actor string) (*models.SellerAccount, error) {
	account, err := s.accounts.GetByID(ctx, sellerAccountID)
	if err != nil {
		return nil, err
	}
	if account.IsGatewayLinked() {
		return account, nil
	}
	if account.BankAccountNumber == "" || account.BankIFSC == "" {
		return nil, domain.NewValidationError(domain.CodeRequired, "bank_account", "seller has no bank account on file")
	}
	gctx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	res, err := s.gateway.CreateFundAccount(gctx, payout.FundAccountRequest{
		SellerAccountID:   account.ID,
		Name:              account.BusinessName,
		Email:             account.Email,
		Phone:             account.Phone,
		AccountHolderName: account.BankAccountHolder,
		IFSC:              account.BankIFSC,
		BankAccountNumber: account.BankAccountNumber,
	})
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateGatewayLink(ctx, account.ID, res.ContactID, res.FundAccountID, s.now()); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "seller_account", account.ID, "LINK_PAYOUT_ACCOUNT", actor, nil, res, nil)
	return s.accounts.GetByID(ctx, account.ID)
}

// Wait blocks until background payouts and batches have finished.
func (s *SettlementService) Wait() {
	s.inflight.Wait()
}

// pendingEvent is an event describing a settlement write that has not happened yet.
type pendingEvent struct {
	t     events.Type
	actor string
	data  map[string]interface{}
}

func settlementEvent(t events.Type, actor string, data map[string]interface{}) pendingEvent {
	return pendingEvent{t: t, actor: actor, data: data}
}

// eventsFor prepares evs for a write of st. A transactional publisher gets the events as
// hooks of the write and after does nothing; otherwise after publishes them once the
// write has committed.
func (s *SettlementService) eventsFor(ctx context.Context, st *models.Settlement, evs ...pendingEvent) ([]func(tx *gorm.DB) error, func()) {
	if len(evs) == 0 {
		return nil, func() {}
	}
	txp, ok := s.publisher.(events.TxPublisher)
	if !ok {
		return nil, func() {
			for _, pe := range evs {
				s.emit(ctx, pe.t, st, pe.actor, pe.data)
			}
		}
	}
	hook := func(tx *gorm.DB) error {
		for _, pe := range evs {
			if err := txp.PublishTx(ctx, tx, s.event(pe.t, st, pe.actor, pe.data)); err != nil {
				return err
			}
		}
		return nil
	}
	return []func(tx *gorm.DB) error{hook}, func() {}
}

// save writes st's state patch under optimistic versioning together with evs.
func (s *SettlementService) save(ctx context.Context, st *models.Settlement, expected int64, evs ...pendingEvent) error {
	hooks, after := s.eventsFor(ctx, st, evs...)
	if err := s.settlements.UpdateWithVersion(ctx, st.ID, st.StatePatch(), expected, hooks...); err != nil {
		return err
	}
	after()
	return nil
}

func (s *SettlementService) event(t events.Type, st *models.Settlement, actor string, data map[string]interface{}) events.Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["status"] = st.Status
	data["version"] = st.Version
	return events.Event{
		Type:        t,
		AggregateID: st.ID,
		SellerID:    st.SellerID,
		Amount:      st.NetAmount.StringFixed(2),
		Currency:    st.Currency,
		Actor:       actor,
		Data:        data,
	}
}

func (s *SettlementService) emit(ctx context.Context, t events.Type, st *models.Settlement, actor string, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, s.event(t, st, actor, data)); err != nil {
		s.log.Warn().Err(err).Str("settlement_id", st.ID).Str("event", string(t)).Msg("event publish failed")
	}
}

func (s *SettlementService) recordAudit(ctx context.Context, entity, entityID, action, actor string, before, after interface{}, metadata map[string]interface{}) {
	if err := s.audit.LogAction(ctx, entity, entityID, action, actor, before, after, metadata); err != nil {
		s.log.Warn().Err(err).Str("entity_id", entityID).Str("action", action).Msg("audit write failed")
	}
}

func snapshot(st *models.Settlement) models.Settlement {
	return *st
}
