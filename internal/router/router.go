package router

import (
	"net/http"

	"marketplace/config"
	"marketplace/internal/domain"
	"marketplace/internal/handler"
	"marketplace/internal/middleware"
	"marketplace/internal/service"
	"marketplace/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Services are what the HTTP layer serves.
type Services struct {
	Settlements *service.SettlementService
	Ledger      *service.WalletLedger
	Hub         *ws.Hub
	Limiter     *middleware.SlidingWindowLimiter
}

func Setup(cfg *config.Config, svc Services, log zerolog.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	settlementHandler := handler.NewSettlementHandler(svc.Settlements, log)
	walletHandler := handler.NewWalletHandler(svc.Ledger, log)
	webhookHandler := handler.NewPayoutWebhookHandler(svc.Settlements, log)

	authMw := middleware.AuthRequired(&cfg.JWT)
	staff := middleware.StaffOnly()
	limit := middleware.RateLimit(svc.Limiter)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/payout", webhookHandler.Handle)

		me := api.Group("/me")
		me.Use(authMw, limit, middleware.RequireRole(domain.RoleSeller))
		{
			me.GET("/wallet", walletHandler.GetBalance)
			me.GET("/wallet/transactions", walletHandler.GetTransactions)
		}

		settlements := api.Group("/settlements")
		settlements.Use(authMw, limit)
		{
			settlements.GET("", settlementHandler.List)
			settlements.GET("/code/:code", settlementHandler.GetByCode)
			settlements.GET("/:id", settlementHandler.Get)
			settlements.GET("/:id/compliance", settlementHandler.Compliance)

			settlements.POST("", staff, settlementHandler.Create)
			settlements.GET("/summary", staff, settlementHandler.Summary)
			settlements.POST("/bulk", staff, settlementHandler.Bulk)
			settlements.POST("/:id/process", staff, settlementHandler.Process)
			settlements.POST("/:id/cancel", staff, settlementHandler.Cancel)
			settlements.POST("/:id/retry", staff, settlementHandler.Retry)
			settlements.POST("/:id/reconcile", staff, settlementHandler.Reconcile)
			settlements.POST("/:id/sync", staff, settlementHandler.Sync)
		}

		jobs := api.Group("/settlement-jobs")
		jobs.Use(authMw, limit, staff)
		{
			jobs.GET("", settlementHandler.ListJobs)
			jobs.GET("/:id", settlementHandler.GetJob)
		}

		sellers := api.Group("/sellers")
		sellers.Use(authMw, limit)
		{
			sellers.GET("/:seller_id/wallet", walletHandler.GetSellerWallet)
			sellers.GET("/:seller_id/wallet/transactions", walletHandler.GetSellerTransactions)
			sellers.POST("/:seller_id/wallet/entries", staff, walletHandler.Mutate)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, limit, middleware.RequireRole(domain.RoleAdmin))
		{
			admin.POST("/sweeps/:name", settlementHandler.TriggerSweep)
			admin.POST("/seller-accounts/:id/link-payout", settlementHandler.LinkPayoutAccount)
		}
	}

	r.GET("/ws/settlements", ws.UpgradeSettlementStream(&cfg.JWT, svc.Hub))

	return r
}
