package handler

import (
	"context"
	"net/http"
	"strings"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	ledger *service.WalletLedger
	log    zerolog.Logger
}

func NewWalletHandler(ledger *service.WalletLedger, log zerolog.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, log: log.With().Str("component", "wallet_handler").Logger()}
}

// GetBalance returns the caller's own wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	h.writeWallet(c, middleware.GetUserID(c))
}

// GetTransactions returns the caller's own ledger entries, newest first.
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	h.writeTransactions(c, middleware.GetUserID(c))
}

func (h *WalletHandler) GetSellerWallet(c *gin.Context) {
	sellerID := c.Param("seller_id")
	if !middleware.CanAccessSeller(c, sellerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	h.writeWallet(c, sellerID)
}

func (h *WalletHandler) GetSellerTransactions(c *gin.Context) {
	sellerID := c.Param("seller_id")
	if !middleware.CanAccessSeller(c, sellerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	h.writeTransactions(c, sellerID)
}

type mutationRequest struct {
	Operation     domain.WalletOperation `json:"operation"`
	Amount        decimal.Decimal        `json:"amount"`
	Category      domain.Category        `json:"category"`
	TransactionID string                 `json:"transaction_id"`
	Description   string                 `json:"description"`
	Reference     string                 `json:"reference"`
}

// Mutate applies a manual ledger entry on behalf of finance staff. Reserve, release and
// settle are driven by settlements only.
func (h *WalletHandler) Mutate(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var apply func(context.Context, domain.WalletMutation) (*models.SellerWallet, *models.WalletTransaction, error)
	switch domain.WalletOperation(strings.ToUpper(string(req.Operation))) {
	case domain.OpCredit:
		apply = h.ledger.Credit
	case domain.OpCreditPending:
		apply = h.ledger.CreditPending
	case domain.OpDebit:
		apply = h.ledger.Debit
	case domain.OpMoveToAvailable:
		apply = h.ledger.MoveIncomingToAvailable
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported operation", "code": "INVALID_OPERATION"})
		return
	}
	w, txn, err := apply(c.Request.Context(), domain.WalletMutation{
		SellerID:      c.Param("seller_id"),
		Amount:        req.Amount,
		Category:      domain.Category(strings.ToUpper(string(req.Category))),
		TransactionID: req.TransactionID,
		Description:   req.Description,
		Reference:     req.Reference,
		Actor:         middleware.GetActor(c),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"wallet": w, "transaction": txn})
}

func (h *WalletHandler) writeWallet(c *gin.Context, sellerID string) {
	w, err := h.ledger.GetWallet(c.Request.Context(), sellerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *WalletHandler) writeTransactions(c *gin.Context, sellerID string) {
	page, size := pageParams(c)
	list, total, err := h.ledger.ListTransactions(c.Request.Context(), sellerID, page, size)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if list == nil {
		list = []models.WalletTransaction{}
	}
	c.JSON(http.StatusOK, paged(list, total, page, size))
}
