package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/internal/database"
	"marketplace/internal/events"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/router"
	"marketplace/internal/service"
	"marketplace/internal/validation"
	"marketplace/internal/ws"
	"marketplace/pkg/logger"
	"marketplace/pkg/payout"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New()
		boot.Fatal().Err(err).Msg("config")
	}
	log := logger.NewWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Pretty:     cfg.Log.Pretty,
		TimeFormat: time.RFC3339,
		Service:    "settlement-engine",
	})

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	policy, err := validation.FromConfig(cfg.Settlement)
	if err != nil {
		log.Fatal().Err(err).Msg("settlement policy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories
	settlementRepo := repository.NewSettlementRepository(db, policy.LockTimeout)
	accountRepo := repository.NewSellerAccountRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	jobRepo := repository.NewJobRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	hub := ws.NewHub()
	bus := events.NewBus(cfg.Events.BufferSize, cfg.Events.MaxAttempts, log)
	bus.SubscribeAll(hub.HandleEvent)
	bus.SubscribeAll(logEvent(log))

	var publisher events.Publisher = bus
	var relay *events.Relay
	if cfg.Events.UseOutbox {
		publisher = events.NewOutboxPublisher(outboxRepo)
		relay = events.NewRelay(outboxRepo, bus, 100, cfg.Events.MaxAttempts, log)
	} else {
		bus.Start(ctx)
	}

	gateway := newGateway(cfg.Payout, log)

	// Services
	ledger := service.NewWalletLedger(walletRepo, publisher, auditRepo, log)
	calculator, err := service.NewWalletEarningsCalculator(walletRepo, cfg.Settlement)
	if err != nil {
		log.Fatal().Err(err).Msg("earnings calculator")
	}
	settlementSvc := service.NewSettlementService(service.Deps{
		Settlements: settlementRepo,
		Accounts:    accountRepo,
		Ledger:      ledger,
		Validator:   service.NewSettlementValidationService(policy, accountRepo, walletRepo, settlementRepo),
		Jobs:        service.NewJobTracker(jobRepo),
		Calculator:  calculator,
		Gateway:     gateway,
		Publisher:   publisher,
		Audit:       auditRepo,
	}, policy, service.OptionsFromConfig(cfg), log)

	sched := service.NewScheduler(log)
	if cfg.Scheduler.Enabled {
		service.RegisterSweeps(sched, settlementSvc, cfg.Scheduler)
	}
	if relay != nil {
		sched.Add("outbox-relay", cfg.Scheduler.OutboxRelayInterval, func(ctx context.Context) error {
			_, err := relay.RunOnce(ctx)
			return err
		})
	}
	sched.Start(ctx)

	limiter := middleware.NewSlidingWindowLimiter(100, time.Minute)
	go limiter.Janitor(ctx)

	engine := router.Setup(cfg, router.Services{
		Settlements: settlementSvc,
		Ledger:      ledger,
		Hub:         hub,
		Limiter:     limiter,
	}, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Server.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	sched.Wait()
	settlementSvc.Wait()
	if relay != nil {
		if _, err := relay.RunOnce(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("final outbox relay")
		}
	}
	bus.Close()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

func newGateway(cfg config.PayoutConfig, log zerolog.Logger) payout.Gateway {
	if cfg.KeyID == "" {
		log.Warn().Msg("payout gateway credentials not set, using stub gateway")
		return payout.NewStubGateway(cfg.WebhookSecret)
	}
	log.Info().Str("provider", cfg.Provider).Str("mode", cfg.Mode).Msg("payout gateway enabled")
	return payout.NewRazorpayGateway(payout.RazorpayConfig{
		KeyID:         cfg.KeyID,
		KeySecret:     cfg.KeySecret,
		AccountNumber: cfg.AccountNumber,
		WebhookSecret: cfg.WebhookSecret,
		Mode:          cfg.Mode,
		Purpose:       cfg.Purpose,
		Timeout:       cfg.Timeout,
		BaseURL:       cfg.BaseURL,
	}, log)
}

func logEvent(log zerolog.Logger) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		log.Debug().Str("event", string(e.Type)).Str("aggregate_id", e.AggregateID).Str("actor", e.Actor).Msg("event")
		return nil
	}
}
