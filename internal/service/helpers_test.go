package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace/internal/database"
	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/internal/repository"
	"marketplace/internal/validation"
	"marketplace/pkg/payout"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(year int, month time.Month, dd int) time.Time {
	return time.Date(year, month, dd, 0, 0, 0, 0, time.UTC)
}

// fakeGateway records payouts in memory. Results are idempotent by key.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []payout.PayoutRequest
	payouts map[string]*payout.PayoutResult
	byKey   map[string]string
	fail    error
	status  payout.Status
	block   chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payouts: make(map[string]*payout.PayoutResult),
		byKey:   make(map[string]string),
		status:  payout.StatusProcessed,
	}
}

func (f *fakeGateway) CreatePayout(ctx context.Context, req payout.PayoutRequest) (*payout.PayoutResult, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail != nil {
		return nil, f.fail
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok {
		cp := *f.payouts[id]
		return &cp, nil
	}
	res := &payout.PayoutResult{
		GatewayPayoutID: fmt.Sprintf("pout_%d", len(f.payouts)+1),
		Status:          f.status,
		Amount:          req.Amount,
		Currency:        req.Currency,
		UTR:             "UTR" + req.SettlementID[:8],
	}
	f.payouts[res.GatewayPayoutID] = res
	f.byKey[req.IdempotencyKey] = res.GatewayPayoutID
	cp := *res
	return &cp, nil
}

func (f *fakeGateway) GetPayoutStatus(ctx context.Context, id string) (*payout.PayoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.payouts[id]
	if !ok {
		return nil, &payout.Error{Code: payout.CodeNotFound, Message: id}
	}
	cp := *res
	return &cp, nil
}

func (f *fakeGateway) CreateFundAccount(ctx context.Context, req payout.FundAccountRequest) (*payout.FundAccountResult, error) {
	return &payout.FundAccountResult{FundAccountID: "fa_" + req.SellerAccountID[:8], ContactID: "cont_" + req.SellerAccountID[:8]}, nil
}

func (f *fakeGateway) VerifyAndParseWebhook(payload []byte, signature string) (*payout.WebhookUpdate, error) {
	return payout.VerifyAndParse(payload, signature, testWebhookSecret)
}

func (f *fakeGateway) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeGateway) setStatus(id string, status payout.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts[id].Status = status
}

func (f *fakeGateway) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.IdempotencyKey)
	}
	return out
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fakeCalculator struct {
	results map[string]domain.AmountBreakdown
	errs    map[string]error
}

func (c *fakeCalculator) Calculate(ctx context.Context, sellerID, currency string, start, end time.Time) (domain.AmountBreakdown, error) {
	if err := c.errs[sellerID]; err != nil {
		return domain.AmountBreakdown{}, err
	}
	if sellerID == "seller-panics" {
		panic("calculation blew up")
	}
	return c.results[sellerID], nil
}

type harness struct {
	t   *testing.T
	ctx context.Context

	mu  sync.Mutex
	now time.Time

	db          *gorm.DB
	settlements *repository.SettlementRepository
	accounts    *repository.SellerAccountRepository
	wallets     *repository.WalletRepository
	jobs        *repository.JobRepository
	audit       *repository.AuditLogRepository

	ledger     *WalletLedger
	validator  *SettlementValidationService
	calculator *fakeCalculator
	gateway    *fakeGateway
	events     *eventRecorder
	svc        *SettlementService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewInMemory(strings.ReplaceAll(uuid.NewString(), "-", ""))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		t:          t,
		ctx:        context.Background(),
		now:        time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC),
		calculator: &fakeCalculator{results: map[string]domain.AmountBreakdown{}, errs: map[string]error{}},
		gateway:    newFakeGateway(),
		events:     &eventRecorder{},
	}
	policy := validation.DefaultPolicy()

	h.db = db
	h.settlements = repository.NewSettlementRepository(db, policy.LockTimeout).WithClock(h.clock)
	h.accounts = repository.NewSellerAccountRepository(db)
	h.wallets = repository.NewWalletRepository(db).WithClock(h.clock)
	h.jobs = repository.NewJobRepository(db)
	h.audit = repository.NewAuditLogRepository(db)
	h.wire(h.events)
	return h
}

// wire builds the ledger and service on top of the harness stores, publishing to pub.
func (h *harness) wire(pub events.Publisher) {
	policy := validation.DefaultPolicy()
	log := zerolog.Nop()
	h.ledger = NewWalletLedger(h.wallets, pub, h.audit, log)
	h.validator = NewSettlementValidationService(policy, h.accounts, h.wallets, h.settlements).WithClock(h.clock)
	h.svc = NewSettlementService(Deps{
		Settlements: h.settlements,
		Accounts:    h.accounts,
		Ledger:      h.ledger,
		Validator:   h.validator,
		Jobs:        NewJobTracker(h.jobs).WithClock(h.clock),
		Calculator:  h.calculator,
		Gateway:     h.gateway,
		Publisher:   pub,
		Audit:       h.audit,
	}, policy, Options{
		MaxRetries:       3,
		RetryBackoffBase: 30 * time.Minute,
		GatewayTimeout:   2 * time.Second,
		ExecutionTimeout: 10 * time.Second,
		SweepLimit:       100,
		DefaultCurrency:  "INR",
		PayoutMode:       "IMPS",
		PayoutPurpose:    "payout",
	}, log).WithClock(h.clock)
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = t
}

func (h *harness) advance(dur time.Duration) {
	h.setNow(h.clock().Add(dur))
}

// seedSeller creates a verified, gateway-linked seller whose wallet holds available.
func (h *harness) seedSeller(sellerID, available string) *models.SellerAccount {
	h.t.Helper()
	fa := "fa_" + sellerID
	acc := &models.SellerAccount{
		SellerID:             sellerID,
		BusinessName:         "Shop " + sellerID,
		Email:                sellerID + "@example.com",
		Status:               domain.SellerStatusActive,
		KYCStatus:            domain.KYCVerified,
		BankAccountHolder:    "Owner " + sellerID,
		BankAccountNumber:    "0001234567",
		BankIFSC:             "HDFC0000001",
		GatewayFundAccountID: &fa,
	}
	require.NoError(h.t, h.accounts.Create(h.ctx, acc))
	_, err := h.ledger.EnsureWallet(h.ctx, sellerID, "INR")
	require.NoError(h.t, err)
	if amt := d(available); amt.IsPositive() {
		_, _, err := h.ledger.Credit(h.ctx, domain.WalletMutation{
			SellerID:      sellerID,
			Amount:        amt,
			Category:      domain.CategorySale,
			TransactionID: "seed:" + sellerID,
		})
		require.NoError(h.t, err)
	}
	return acc
}

// scenarioA is the January request from the settlement examples: net 9300.00.
func scenarioA(sellerID string) *domain.CreateSettlementRequest {
	return &domain.CreateSettlementRequest{
		SellerID:    sellerID,
		PeriodStart: day(2024, 1, 1),
		PeriodEnd:   day(2024, 1, 31),
		Currency:    "inr",
		AmountBreakdown: domain.AmountBreakdown{
			Gross:       d("10000.00"),
			Commission:  d("500.00"),
			PlatformFee: d("100.00"),
			Tax:         d("90.00"),
			Adjustment:  d("-10.00"),
			Net:         d("9300.00"),
		},
	}
}

func (h *harness) create(req *domain.CreateSettlementRequest) *models.Settlement {
	h.t.Helper()
	st, err := h.svc.CreateSettlement(h.ctx, req, "FINANCE:fin-1")
	require.NoError(h.t, err)
	return st
}

func (h *harness) reload(id string) *models.Settlement {
	h.t.Helper()
	st, err := h.settlements.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return st
}

func (h *harness) wallet(sellerID string) *models.SellerWallet {
	h.t.Helper()
	w, err := h.wallets.GetBySellerID(h.ctx, sellerID)
	require.NoError(h.t, err)
	return w
}
