package payout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/constants"
	rzperrors "github.com/razorpay/razorpay-go/errors"
	"github.com/razorpay/razorpay-go/requests"
	"github.com/razorpay/razorpay-go/resources"
	"github.com/rs/zerolog"
)

const (
	contactsPath = "/v1/contacts"
	payoutsPath  = "/v1/payouts"
)

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	AccountNumber string // RazorpayX virtual account the payouts are drawn from
	WebhookSecret string
	Mode          string
	Purpose       string
	Timeout       time.Duration
	BaseURL       string // defaults to the public API host
}

// RazorpayGateway drives RazorpayX payouts. Fund accounts go through the typed
// razorpay-go resource; contacts and payouts have no resource in the SDK and use
// the gateway's own request client.
type RazorpayGateway struct {
	client *razorpay.Client
	req    *requests.Request
	cfg    RazorpayConfig
	log    zerolog.Logger
}

func NewRazorpayGateway(cfg RazorpayConfig, log zerolog.Logger) *RazorpayGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = "IMPS"
	}
	if cfg.Purpose == "" {
		cfg.Purpose = "payout"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.BASE_URL
	}
	// razorpay.NewClient shares one package-level request across clients; give this
	// gateway its own so base URL and timeout stay per instance.
	req := &requests.Request{
		Auth:       requests.Auth{Key: cfg.KeyID, Secret: cfg.KeySecret},
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Headers:    map[string]string{},
		Version:    razorpay.SDKVersion,
		SDKName:    razorpay.SDKName,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	client.FundAccount = &resources.FundAccount{Request: req}
	return &RazorpayGateway{
		client: client,
		req:    req,
		cfg:    cfg,
		log:    log.With().Str("component", "razorpay").Logger(),
	}
}

func (g *RazorpayGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	units, err := ToMinor(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = g.cfg.Mode
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = g.cfg.Purpose
	}
	notes := map[string]interface{}{"settlement_id": req.SettlementID}
	for k, v := range req.Metadata {
		notes[k] = v
	}
	body := map[string]interface{}{
		"account_number":       g.cfg.AccountNumber,
		"fund_account_id":      req.DestinationAccountRef,
		"amount":               units,
		"currency":             strings.ToUpper(req.Currency),
		"mode":                 mode,
		"purpose":              purpose,
		"queue_if_low_balance": true,
		"reference_id":         req.SettlementID,
		"narration":            narration(req),
		"notes":                notes,
	}
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["X-Payout-Idempotency"] = req.IdempotencyKey
	}

	resp, err := g.do(ctx, func() (map[string]interface{}, error) {
		return g.req.Post(payoutsPath, body, headers)
	})
	if err != nil {
		g.log.Error().Err(err).Str("settlement_id", req.SettlementID).Msg("[PAYOUT] create failed")
		return nil, err
	}
	res := resultFromEntity(resp)
	if res.GatewayPayoutID == "" {
		return nil, &Error{Code: CodeMalformedPayload, Message: "payout response without id", Retryable: true}
	}
	g.log.Info().
		Str("settlement_id", req.SettlementID).
		Str("payout_id", res.GatewayPayoutID).
		Str("status", string(res.Status)).
		Msg("[PAYOUT] created")
	return res, nil
}

func (g *RazorpayGateway) GetPayoutStatus(ctx context.Context, gatewayPayoutID string) (*PayoutResult, error) {
	resp, err := g.do(ctx, func() (map[string]interface{}, error) {
		return g.req.Get(payoutsPath+"/"+gatewayPayoutID, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return resultFromEntity(resp), nil
}

// CreateFundAccount registers the seller as a vendor contact and attaches their bank account.
func (g *RazorpayGateway) CreateFundAccount(ctx context.Context, req FundAccountRequest) (*FundAccountResult, error) {
	contact, err := g.do(ctx, func() (map[string]interface{}, error) {
		return g.req.Post(contactsPath, map[string]interface{}{
			"name":         req.Name,
			"email":        req.Email,
			"contact":      req.Phone,
			"type":         "vendor",
			"reference_id": req.SellerAccountID,
		}, nil)
	})
	if err != nil {
		return nil, err
	}
	contactID := str(contact, "id")
	if contactID == "" {
		return nil, &Error{Code: CodeMalformedPayload, Message: "contact response without id"}
	}

	holder := req.AccountHolderName
	if holder == "" {
		holder = req.Name
	}
	fa, err := g.do(ctx, func() (map[string]interface{}, error) {
		return g.client.FundAccount.Create(map[string]interface{}{
			"contact_id":   contactID,
			"account_type": "bank_account",
			"bank_account": map[string]interface{}{
				"name":           holder,
				"ifsc":           req.IFSC,
				"account_number": req.BankAccountNumber,
			},
		}, nil)
	})
	if err != nil {
		return nil, err
	}
	return &FundAccountResult{FundAccountID: str(fa, "id"), ContactID: contactID}, nil
}

func (g *RazorpayGateway) VerifyAndParseWebhook(payload []byte, signature string) (*WebhookUpdate, error) {
	return VerifyAndParse(payload, signature, g.cfg.WebhookSecret)
}

// do bounds a blocking client call by the configured timeout. The call itself cannot be
// aborted once issued; a timed-out result is discarded and later resolved by status sync.
func (g *RazorpayGateway) do(ctx context.Context, call func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := call()
		ch <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &Error{Code: CodeTimeout, Message: ctx.Err().Error(), Retryable: true}
	case r := <-ch:
		if r.err != nil {
			return nil, classify(r.err)
		}
		return r.body, nil
	}
}

func classify(err error) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	var (
		badReq  *rzperrors.BadRequestError
		server  *rzperrors.ServerError
		gateway *rzperrors.GatewayError
	)
	switch {
	case errors.As(err, &badReq):
		return &Error{Code: CodeBadRequest, Message: badReq.Error()}
	case errors.As(err, &server), errors.As(err, &gateway):
		return &Error{Code: CodeServer, Message: err.Error(), Retryable: true}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "bad_request"), strings.Contains(lower, "invalid"),
		strings.Contains(lower, "is required"), strings.Contains(lower, "not found"):
		return &Error{Code: CodeBadRequest, Message: msg}
	default:
		return &Error{Code: CodeServer, Message: msg, Retryable: true}
	}
}

func narration(req PayoutRequest) string {
	if req.Narration != "" {
		return req.Narration
	}
	n := fmt.Sprintf("Settlement %s", req.SettlementID)
	if len(n) > 30 {
		n = n[:30]
	}
	return n
}
