package models

import (
	"math/rand"
	"testing"

	"marketplace/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newWallet(available string) *SellerWallet {
	w := &SellerWallet{ID: "w1", SellerID: "seller-1", Currency: "INR", AvailableBalance: d(available)}
	w.recomputeTotal()
	return w
}

func TestDebitScenario(t *testing.T) {
	w := newWallet("5000.00")

	_, err := w.Apply(domain.OpDebit, d("6000.00"))
	var berr *domain.InsufficientBalanceError
	require.ErrorAs(t, err, &berr)
	assert.True(t, w.AvailableBalance.Equal(d("5000.00")))

	txn, err := w.Apply(domain.OpDebit, d("3000.00"))
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(d("2000.00")))
	assert.True(t, txn.BalanceBefore.Equal(d("5000.00")))
	assert.True(t, txn.BalanceAfter.Equal(d("2000.00")))
	assert.Equal(t, domain.TransactionDebit, txn.Type)
}

func TestReserveThenReleaseRestoresBalances(t *testing.T) {
	w := newWallet("1500.00")

	_, err := w.Apply(domain.OpReserve, d("1000.00"))
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(d("500.00")))
	assert.True(t, w.ReservedBalance.Equal(d("1000.00")))
	assert.True(t, w.TotalBalance.Equal(d("1500.00")))

	_, err = w.Apply(domain.OpRelease, d("1000.00"))
	require.NoError(t, err)
	assert.True(t, w.AvailableBalance.Equal(d("1500.00")))
	assert.True(t, w.ReservedBalance.IsZero())
}

func TestReleaseBeyondReservedIsInvalidState(t *testing.T) {
	w := newWallet("100.00")
	_, err := w.Apply(domain.OpRelease, d("1.00"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestMoveIncomingToAvailable(t *testing.T) {
	w := newWallet("0")
	_, err := w.Apply(domain.OpCreditPending, d("250.00"))
	require.NoError(t, err)

	_, err = w.Apply(domain.OpMoveToAvailable, d("300.00"))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	txn, err := w.Apply(domain.OpMoveToAvailable, d("200.00"))
	require.NoError(t, err)
	assert.True(t, w.PendingBalance.Equal(d("50.00")))
	assert.True(t, w.AvailableBalance.Equal(d("200.00")))
	assert.Equal(t, domain.BucketAvailable, txn.Bucket)
}

func TestApplyRejectsNonPositiveAmounts(t *testing.T) {
	w := newWallet("10.00")
	_, err := w.Apply(domain.OpCredit, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = w.Apply(domain.OpCredit, d("-1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	ops := []domain.WalletOperation{
		domain.OpCredit, domain.OpCreditPending, domain.OpDebit, domain.OpReserve,
		domain.OpRelease, domain.OpMoveToAvailable, domain.OpSettleReserved,
	}
	rng := rand.New(rand.NewSource(42))
	w := newWallet("0")
	for i := 0; i < 2000; i++ {
		op := ops[rng.Intn(len(ops))]
		amount := decimal.New(int64(rng.Intn(50000)+1), -2)
		before := *w
		txn, err := w.Apply(op, amount)
		if err != nil {
			assert.Equal(t, before, *w, "failed %s must not change the wallet", op)
			continue
		}
		require.NoError(t, w.CheckInvariants(), "after %s %s", op, amount)
		if txn.Type == domain.TransactionCredit {
			assert.True(t, txn.BalanceAfter.Equal(txn.BalanceBefore.Add(amount)))
		} else {
			assert.True(t, txn.BalanceAfter.Equal(txn.BalanceBefore.Sub(amount)))
		}
	}
}
