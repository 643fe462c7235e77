package payout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const processedEvent = `{
  "entity": "event",
  "event": "payout.processed",
  "payload": {
    "payout": {
      "entity": {
        "id": "pout_00000000000001",
        "amount": 931000,
        "currency": "INR",
        "status": "processed",
        "reference_id": "set-1",
        "utr": "UTR123"
      }
    }
  }
}`

func TestVerifySignature(t *testing.T) {
	body := []byte(processedEvent)
	sig := Sign(body, "whsec")

	assert.True(t, VerifySignature(body, sig, "whsec"))
	assert.False(t, VerifySignature(body, sig, "other"))
	assert.False(t, VerifySignature(body, "", "whsec"))
	assert.False(t, VerifySignature(body, sig, ""))
	assert.False(t, VerifySignature(append(body, ' '), sig, "whsec"))
}

func TestVerifyAndParseProcessed(t *testing.T) {
	body := []byte(processedEvent)
	u, err := VerifyAndParse(body, Sign(body, "whsec"), "whsec")
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, EventPayoutProcessed, u.Event)
	assert.Equal(t, "pout_00000000000001", u.GatewayPayoutID)
	assert.Equal(t, "set-1", u.ReferenceID)
	assert.Equal(t, StatusProcessed, u.Status)
	assert.True(t, u.Amount.Equal(decimal.RequireFromString("9310.00")))
	assert.Equal(t, "UTR123", u.UTR)
}

func TestVerifyAndParseRejectsBadSignature(t *testing.T) {
	_, err := VerifyAndParse([]byte(processedEvent), "deadbeef", "whsec")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	u, err := ParseWebhook([]byte(`{"entity":"event","event":"payment.captured","payload":{}}`))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestParseWebhookFailureReason(t *testing.T) {
	body := `{"event":"payout.failed","payload":{"payout":{"entity":{"id":"pout_2","amount":100,"currency":"INR","status_details":{"description":"beneficiary bank offline"}}}}}`
	u, err := ParseWebhook([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, StatusFailed, u.Status)
	assert.True(t, u.Status.IsFailure())
	assert.Equal(t, "beneficiary bank offline", u.FailureReason)
}

func TestParseWebhookMalformed(t *testing.T) {
	_, err := ParseWebhook([]byte(`{`))
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, CodeMalformedPayload, gerr.Code)
}
