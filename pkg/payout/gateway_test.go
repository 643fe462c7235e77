package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusProcessed.IsFinal())
	assert.True(t, StatusReversed.IsFailure())
	assert.False(t, StatusQueued.IsFinal())
	assert.False(t, StatusProcessing.IsFailure())
}

func TestStubGatewayIsIdempotent(t *testing.T) {
	g := NewStubGateway("secret")
	req := PayoutRequest{
		SettlementID:          "set-1",
		Amount:                decimal.RequireFromString("10.50"),
		Currency:              "INR",
		DestinationAccountRef: "fa_1",
		IdempotencyKey:        "set-1-0",
	}
	first, err := g.CreatePayout(context.Background(), req)
	require.NoError(t, err)
	second, err := g.CreatePayout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.GatewayPayoutID, second.GatewayPayoutID)

	status, err := g.GetPayoutStatus(context.Background(), first.GatewayPayoutID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, status.Status)
}

func TestStubGatewayRejectsSubunitAmounts(t *testing.T) {
	g := NewStubGateway("")
	_, err := g.CreatePayout(context.Background(), PayoutRequest{
		Amount:                decimal.RequireFromString("1.001"),
		Currency:              "INR",
		DestinationAccountRef: "fa_1",
	})
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, CodeInvalidAmount, gerr.Code)
	assert.False(t, gerr.Retryable)
}

func TestRazorpayCallTimesOut(t *testing.T) {
	g := NewRazorpayGateway(RazorpayConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())
	release := make(chan struct{})
	defer close(release)

	_, err := g.do(context.Background(), func() (map[string]interface{}, error) {
		<-release
		return nil, nil
	})
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, CodeTimeout, gerr.Code)
	assert.True(t, gerr.Retryable)
}

func TestClassify(t *testing.T) {
	bad := classify(errors.New("BAD_REQUEST_ERROR: The fund account id is invalid"))
	assert.False(t, IsRetryable(bad))

	server := classify(errors.New("connection reset by peer"))
	assert.True(t, IsRetryable(server))
}

func TestNarrationIsTruncated(t *testing.T) {
	n := narration(PayoutRequest{SettlementID: "0123456789abcdef0123456789abcdef"})
	assert.LessOrEqual(t, len(n), 30)
}
