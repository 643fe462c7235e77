package handler

import (
	"errors"
	"io"
	"net/http"

	"marketplace/internal/service"
	"marketplace/pkg/payout"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

type PayoutWebhookHandler struct {
	svc *service.SettlementService
	log zerolog.Logger
}

func NewPayoutWebhookHandler(svc *service.SettlementService, log zerolog.Logger) *PayoutWebhookHandler {
	return &PayoutWebhookHandler{svc: svc, log: log.With().Str("component", "payout_webhook").Logger()}
}

// Handle verifies the provider signature over the raw body and applies the payout update.
// Updates for unknown payouts are acknowledged so the provider stops redelivering them.
func (h *PayoutWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn().Err(err).Msg("read body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	outcome, err := h.svc.HandlePayoutWebhook(c.Request.Context(), body, c.GetHeader(payout.SignatureHeader))
	if err != nil {
		var perr *payout.Error
		switch {
		case errors.Is(err, payout.ErrInvalidSignature):
			h.log.Warn().Str("ip", c.ClientIP()).Msg("webhook signature rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.As(err, &perr) && perr.Code == payout.CodeMalformedPayload:
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		default:
			h.log.Error().Err(err).Msg("apply webhook")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	h.log.Info().Str("outcome", string(outcome)).Msg("payout webhook")
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
