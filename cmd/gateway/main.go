package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dcb-treasury/certification-gateway/internal/application/services"
	"github.com/dcb-treasury/certification-gateway/internal/config"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/peer"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/persistence/postgres"
	"github.com/dcb-treasury/certification-gateway/internal/infrastructure/signature"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest/handlers"
	"github.com/dcb-treasury/certification-gateway/internal/interfaces/rest/middleware"
	"github.com/dcb-treasury/certification-gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting certification gateway",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
		"enforce_signature", cfg.Webhook.EnforceSignature,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	lockRepo := postgres.NewLockRepository(db)
	mintRepo := postgres.NewMintRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	endpointRepo := postgres.NewEndpointRepository(db)
	apiKeyRepo := postgres.NewAPIKeyRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	signer := signature.NewSigner(cfg.Webhook.SharedSecret, cfg.Webhook.FreshnessWindow)

	peerClient := peer.NewRetryPeerClient(peer.NewPeerClient(cfg.Peer), cfg.Retry)

	dispatcher := services.NewWebhookDispatcher(lockRepo, eventRepo, peerClient, auditRepo, signer, cfg.Webhook, logger)
	receiver := services.NewWebhookReceiver(lockRepo, mintRepo, eventRepo, auditRepo, signer, cfg.Webhook.EnforceSignature, logger)
	lockService := services.NewLockService(lockRepo, mintRepo, eventRepo, dispatcher, peerClient, auditRepo, logger)
	adminService := services.NewAdminService(endpointRepo, apiKeyRepo, peerClient, auditRepo, cfg.Webhook, logger)

	if cfg.Server.PublicURL != "" {
		callbackURL := cfg.Server.PublicURL + "/api/webhooks/receive"
		if err := peerClient.RegisterEndpoint(ctx, "certification-gateway", callbackURL, []string{"*"}); err != nil {
			logger.Warn("could not register callback with peer", "url", callbackURL, "error", err)
		}
	}

	h := handlers.NewHandlers(
		lockService,
		receiver,
		adminService,
		eventRepo,
		func(ctx context.Context) error { return db.Pool.Ping(ctx) },
		handlers.Info{
			Service:         "certification-gateway",
			Environment:     cfg.Primary.Env,
			WebhookID:       cfg.Webhook.WebhookID,
			Source:          cfg.Webhook.Source,
			ProtocolVersion: cfg.Webhook.ProtocolVersion,
		},
		logger,
	)

	handler := middleware.Chain(h.Routes(),
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.Timeout(cfg.Server.ReadTimeout),
		middleware.APIKey(adminService, logger),
	)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	redeliveryWorker := worker.NewRedeliveryWorker(
		eventRepo,
		peerClient,
		auditRepo,
		cfg.Worker.Interval,
		cfg.Worker.BatchSize,
		cfg.Worker.MaxAttempts,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go redeliveryWorker.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
