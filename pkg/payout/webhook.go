package payout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	EventPayoutProcessed = "payout.processed"
	EventPayoutFailed    = "payout.failed"
	EventPayoutReversed  = "payout.reversed"
	EventPayoutRejected  = "payout.rejected"
	EventPayoutUpdated   = "payout.updated"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Razorpay-Signature"

func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. An empty secret or signature never verifies.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

type webhookEnvelope struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Payout *struct {
			Entity map[string]interface{} `json:"entity"`
		} `json:"payout"`
	} `json:"payload"`
}

// ParseWebhook decodes a provider event. Events that are not payout status changes return nil.
func ParseWebhook(payload []byte) (*WebhookUpdate, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &Error{Code: CodeMalformedPayload, Message: err.Error()}
	}
	if !strings.HasPrefix(env.Event, "payout.") || env.Payload.Payout == nil {
		return nil, nil
	}
	entity := env.Payload.Payout.Entity
	res := resultFromEntity(entity)
	if res.GatewayPayoutID == "" {
		return nil, &Error{Code: CodeMalformedPayload, Message: "payout entity without id"}
	}
	update := &WebhookUpdate{
		Event:           env.Event,
		GatewayPayoutID: res.GatewayPayoutID,
		ReferenceID:     str(entity, "reference_id"),
		Status:          res.Status,
		Amount:          res.Amount,
		Currency:        res.Currency,
		UTR:             res.UTR,
		FailureReason:   res.FailureReason,
		Raw:             entity,
	}
	if update.Status == "" {
		update.Status = statusFromEvent(env.Event)
	}
	return update, nil
}

func VerifyAndParse(payload []byte, signature, secret string) (*WebhookUpdate, error) {
	if !VerifySignature(payload, signature, secret) {
		return nil, ErrInvalidSignature
	}
	return ParseWebhook(payload)
}

func statusFromEvent(event string) Status {
	switch event {
	case EventPayoutProcessed:
		return StatusProcessed
	case EventPayoutFailed:
		return StatusFailed
	case EventPayoutReversed:
		return StatusReversed
	case EventPayoutRejected:
		return StatusRejected
	}
	return StatusProcessing
}

func resultFromEntity(m map[string]interface{}) *PayoutResult {
	currency := str(m, "currency")
	res := &PayoutResult{
		GatewayPayoutID: str(m, "id"),
		Status:          Status(strings.ToLower(str(m, "status"))),
		Currency:        currency,
		UTR:             str(m, "utr"),
		FailureReason:   str(m, "failure_reason"),
		Raw:             m,
	}
	if units, ok := num(m, "amount"); ok {
		res.Amount = FromMinor(units, currency)
	}
	if res.FailureReason == "" {
		if details, ok := m["status_details"].(map[string]interface{}); ok {
			res.FailureReason = str(details, "description")
		}
	}
	return res
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func num(m map[string]interface{}, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}
