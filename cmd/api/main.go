package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrow-settlement-engine/config"
	httpHandler "escrow-settlement-engine/internal/adapter/http/handler"
	pgStorage "escrow-settlement-engine/internal/adapter/storage/postgres"
	redisStorage "escrow-settlement-engine/internal/adapter/storage/redis"
	"escrow-settlement-engine/internal/adapter/swap"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/internal/service"
	"escrow-settlement-engine/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Escrow Settlement Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	registryRepo := pgStorage.NewRegistryRepo(pool)
	sessionRepo := pgStorage.NewSessionRepo(pool)
	holdingRepo := pgStorage.NewHoldingRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	sessionCache := redisStorage.NewSessionCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	adminAccount, err := uuid.Parse(cfg.Fee.AdminAccount)
	if err != nil {
		log.Fatal().Err(err).Msg("fee.admin_account is not a valid UUID")
	}

	// Initialize the swap venue
	swapVenue, err := swap.NewVenue(cfg.Swap, holdingRepo, logger.Component(log, "swap"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize swap venue")
	}

	// Initialize business services
	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	registrySvc := service.NewRegistryService(registryRepo, logger.Component(log, "registry"))
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))
	webhookSvc := service.NewWebhookService(registryRepo, webhookRepo, sigSvc, &http.Client{Timeout: 10 * time.Second}, logger.Component(log, "webhook"))
	sessionSvc := service.NewSessionService(
		sessionRepo,
		registryRepo,
		holdingRepo,
		transactor,
		sessionCache,
		auditSvc,
		webhookSvc,
		logger.Component(log, "session"),
	)
	feePolicy := service.NewBasisPointsPolicy(cfg.Fee.BasisPoints)
	settlementSvc := service.NewSettlementService(
		sessionRepo,
		holdingRepo,
		transactor,
		swapVenue,
		feePolicy,
		sessionCache,
		auditSvc,
		webhookSvc,
		cfg.Fee.RequireFullProceeds,
		logger.Component(log, "settlement"),
	)
	feeSvc := service.NewFeeVaultService(holdingRepo, transactor, auditSvc, adminAccount, logger.Component(log, "fees"))

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		RegistrySvc:    registrySvc,
		SessionSvc:     sessionSvc,
		SettlementSvc:  settlementSvc,
		FeeSvc:         feeSvc,
		TokenSvc:       tokenSvc,
		HoldingRepo:    holdingRepo,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
