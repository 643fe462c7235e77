package handler

import (
	"net/http"
	"strings"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type SettlementHandler struct {
	svc *service.SettlementService
	log zerolog.Logger
}

func NewSettlementHandler(svc *service.SettlementService, log zerolog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, log: log.With().Str("component", "settlement_handler").Logger()}
}

// Create registers a PENDING settlement from a precomputed breakdown.
func (h *SettlementHandler) Create(c *gin.Context) {
	var req domain.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	st, err := h.svc.CreateSettlement(c.Request.Context(), &req, middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *SettlementHandler) Get(c *gin.Context) {
	st, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SettlementHandler) GetByCode(c *gin.Context) {
	st, err := h.svc.GetSettlementByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if !middleware.CanAccessSeller(c, st.SellerID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "settlement not found", "code": "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// List filters by seller_id, a comma separated status list and a created_at range.
// Sellers only ever see their own settlements.
func (h *SettlementHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	f := domain.SettlementFilter{SellerID: c.Query("seller_id"), Page: page, PageSize: size}
	if middleware.GetRole(c) == domain.RoleSeller {
		f.SellerID = middleware.GetUserID(c)
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Statuses = append(f.Statuses, domain.SettlementStatus(strings.ToUpper(s)))
			}
		}
	}
	var err error
	if f.From, err = timeParam(c, "from"); err != nil {
		respondError(c, h.log, err)
		return
	}
	if f.To, err = timeParam(c, "to"); err != nil {
		respondError(c, h.log, err)
		return
	}
	list, total, err := h.svc.ListSettlements(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if list == nil {
		list = []models.Settlement{}
	}
	c.JSON(http.StatusOK, paged(list, total, page, size))
}

// Process locks the settlement and starts the payout; the result arrives asynchronously.
func (h *SettlementHandler) Process(c *gin.Context) {
	st, err := h.svc.ProcessSettlement(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *SettlementHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	st, err := h.svc.CancelSettlement(c.Request.Context(), c.Param("id"), middleware.GetActor(c), req.Reason)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SettlementHandler) Retry(c *gin.Context) {
	st, err := h.svc.RetrySettlement(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, st)
}

func (h *SettlementHandler) Reconcile(c *gin.Context) {
	st, err := h.svc.ReconcileSettlement(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Sync polls the gateway for the payout status.
func (h *SettlementHandler) Sync(c *gin.Context) {
	st, err := h.svc.SyncPayoutStatus(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *SettlementHandler) Compliance(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	issues, err := h.svc.CheckCompliance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if issues == nil {
		issues = []service.ComplianceIssue{}
	}
	c.JSON(http.StatusOK, gin.H{"compliant": len(issues) == 0, "issues": issues})
}

func (h *SettlementHandler) Summary(c *gin.Context) {
	from, err := timeParam(c, "from")
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	to, err := timeParam(c, "to")
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	sum, err := h.svc.Summary(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Bulk starts a bulk settlement job and returns it while it runs.
func (h *SettlementHandler) Bulk(c *gin.Context) {
	var req domain.BulkSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	job, err := h.svc.StartBulkSettlements(c.Request.Context(), &req, middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// TriggerSweep runs one named sweep immediately.
func (h *SettlementHandler) TriggerSweep(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		res service.SweepResult
		err error
	)
	switch c.Param("name") {
	case "pending":
		res, err = h.svc.RunPendingSweep(ctx)
	case "retry":
		res, err = h.svc.RunRetrySweep(ctx)
	case "stalled":
		res, err = h.svc.RecoverStalledPayouts(ctx)
	case "gateway-sync":
		res, err = h.svc.RunGatewaySyncSweep(ctx)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sweep", "code": "NOT_FOUND"})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info().Str("sweep", c.Param("name")).Str("actor", middleware.GetActor(c)).
		Int("found", res.Found).Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("sweep triggered")
	c.JSON(http.StatusOK, res)
}

// LinkPayoutAccount registers the seller's bank account with the payout gateway.
func (h *SettlementHandler) LinkPayoutAccount(c *gin.Context) {
	acct, err := h.svc.LinkSellerPayoutAccount(c.Request.Context(), c.Param("id"), middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (h *SettlementHandler) ListJobs(c *gin.Context) {
	page, size := pageParams(c)
	jobs, total, err := h.svc.ListJobs(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if jobs == nil {
		jobs = []models.SettlementJob{}
	}
	c.JSON(http.StatusOK, paged(jobs, total, page, size))
}

func (h *SettlementHandler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// load fetches :id and hides settlements the caller may not see.
func (h *SettlementHandler) load(c *gin.Context) (*models.Settlement, bool) {
	st, err := h.svc.GetSettlement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	if !middleware.CanAccessSeller(c, st.SellerID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "settlement not found", "code": "NOT_FOUND"})
		return nil, false
	}
	return st, true
}
