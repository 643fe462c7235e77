package service

import (
	"context"
	"errors"
	"strings"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/pkg/money"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WalletLedger is the only writer of seller wallet balances. Each operation runs under
// the wallet's row lock and appends exactly one immutable transaction.
type WalletLedger struct {
	wallets   WalletStore
	publisher events.Publisher
	audit     AuditSink
	log       zerolog.Logger
}

func NewWalletLedger(wallets WalletStore, publisher events.Publisher, audit AuditSink, log zerolog.Logger) *WalletLedger {
	return &WalletLedger{
		wallets:   wallets,
		publisher: publisher,
		audit:     audit,
		log:       log.With().Str("component", "wallet_ledger").Logger(),
	}
}

func (l *WalletLedger) EnsureWallet(ctx context.Context, sellerID, currency string) (*models.SellerWallet, error) {
	if sellerID == "" {
		return nil, domain.NewValidationError(domain.CodeRequired, "seller_id", "seller id is required")
	}
	if currency == "" {
		return nil, domain.NewValidationError(domain.CodeRequired, "currency", "currency is required")
	}
	return l.wallets.GetOrCreate(ctx, sellerID, currency)
}

func (l *WalletLedger) GetWallet(ctx context.Context, sellerID string) (*models.SellerWallet, error) {
	return l.wallets.GetBySellerID(ctx, sellerID)
}

func (l *WalletLedger) ListTransactions(ctx context.Context, sellerID string, page, pageSize int) ([]models.WalletTransaction, int64, error) {
	if _, err := l.wallets.GetBySellerID(ctx, sellerID); err != nil {
		return nil, 0, err
	}
	return l.wallets.ListTransactions(ctx, sellerID, page, pageSize)
}

// HasTransaction reports whether a ledger entry with transactionID was already applied.
func (l *WalletLedger) HasTransaction(ctx context.Context, transactionID string) (bool, error) {
	_, err := l.wallets.GetTransaction(ctx, transactionID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Credit adds to the available balance.
func (l *WalletLedger) Credit(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpCredit, m)
}

// CreditPending adds incoming funds that are still inside their hold period.
func (l *WalletLedger) CreditPending(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpCreditPending, m)
}

func (l *WalletLedger) Debit(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpDebit, m)
}

// Reserve moves funds from available to reserved.
func (l *WalletLedger) Reserve(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpReserve, m)
}

// Release moves funds from reserved back to available.
func (l *WalletLedger) Release(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpRelease, m)
}

func (l *WalletLedger) MoveIncomingToAvailable(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpMoveToAvailable, m)
}

// SettleReserved removes reserved funds that have been paid out and stamps the wallet's
// last settlement.
func (l *WalletLedger) SettleReserved(ctx context.Context, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	return l.apply(ctx, domain.OpSettleReserved, m)
}

func (l *WalletLedger) apply(ctx context.Context, op domain.WalletOperation, m domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error) {
	if err := validateMutation(m); err != nil {
		return nil, nil, err
	}
	actor := m.Actor
	if actor == "" {
		actor = domain.ActorSystem
	}
	evType, notify := walletEventType(op)
	txp, inTx := l.publisher.(events.TxPublisher)
	var hooks []func(tx *gorm.DB, w *models.SellerWallet) error
	if notify && inTx {
		hooks = append(hooks, func(tx *gorm.DB, w *models.SellerWallet) error {
			return txp.PublishTx(ctx, tx, walletEvent(evType, op, w, m, actor))
		})
	}

	w, txn, err := l.wallets.ApplyMutation(ctx, op, m, hooks...)
	if err != nil {
		return nil, nil, err
	}
	l.log.Debug().
		Str("seller_id", m.SellerID).
		Str("op", string(op)).
		Str("txn", m.TransactionID).
		Str("amount", m.Amount.StringFixed(2)).
		Msg("wallet mutation applied")

	if err := l.audit.LogAction(ctx, "wallet", w.ID, string(op), actor, nil, txn, map[string]interface{}{
		"transaction_id": m.TransactionID,
		"category":       m.Category,
	}); err != nil {
		l.log.Warn().Err(err).Str("wallet_id", w.ID).Msg("audit write failed")
	}

	if notify && !inTx {
		if err := l.publisher.Publish(ctx, walletEvent(evType, op, w, m, actor)); err != nil {
			l.log.Warn().Err(err).Str("wallet_id", w.ID).Msg("event publish failed")
		}
	}
	return w, txn, nil
}

func walletEventType(op domain.WalletOperation) (events.Type, bool) {
	switch op {
	case domain.OpCredit, domain.OpCreditPending:
		return events.WalletCredited, true
	case domain.OpDebit, domain.OpSettleReserved:
		return events.WalletDebited, true
	}
	return "", false
}

func walletEvent(t events.Type, op domain.WalletOperation, w *models.SellerWallet, m domain.WalletMutation, actor string) events.Event {
	return events.Event{
		Type:        t,
		AggregateID: w.ID,
		SellerID:    w.SellerID,
		Amount:      m.Amount.StringFixed(2),
		Currency:    w.Currency,
		Actor:       actor,
		Data: map[string]interface{}{
			"transaction_id":    m.TransactionID,
			"operation":         op,
			"category":          m.Category,
			"available_balance": w.AvailableBalance.StringFixed(2),
		},
	}
}

func validateMutation(m domain.WalletMutation) error {
	switch {
	case m.SellerID == "":
		return domain.NewValidationError(domain.CodeRequired, "seller_id", "seller id is required")
	case strings.TrimSpace(m.TransactionID) == "":
		return domain.NewValidationError(domain.CodeRequired, "transaction_id", "transaction id is required")
	case !m.Category.Valid():
		return domain.NewValidationError(domain.CodeInvalidCategory, "category", "unknown category %q", m.Category)
	case !m.Amount.IsPositive():
		return domain.NewValidationError(domain.CodeInvalidAmount, "amount", "amount must be greater than zero")
	case !money.HasAtMostTwoDecimals(m.Amount):
		return domain.NewValidationError(domain.CodeTooManyDecimals, "amount", "amount has more than two decimal places")
	}
	return nil
}
