package handler

import (
	"escrow-settlement-engine/internal/adapter/http/middleware"
	redisStore "escrow-settlement-engine/internal/adapter/storage/redis"
	"escrow-settlement-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	RegistrySvc    ports.RegistryService
	SessionSvc     ports.SessionService
	SettlementSvc  ports.SettlementService
	FeeSvc         ports.FeeVaultService
	TokenSvc       ports.TokenService
	HoldingRepo    ports.HoldingRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	merchantHandler := NewMerchantHandler(deps.RegistrySvc)
	merchants := v1.Group("/merchants", jwtAuth)
	{
		merchants.POST("/registry", rl("registry"), merchantHandler.Register)
		merchants.PUT("/registry", rl("registry"), merchantHandler.Update)
		merchants.GET("/registry", rl("reads"), merchantHandler.Get)
	}

	sessionHandler := NewSessionHandler(deps.SessionSvc, deps.SettlementSvc)
	sessions := v1.Group("/sessions", jwtAuth)
	{
		sessions.POST("", rl("sessions"), sessionHandler.Open)
		sessions.GET("", rl("reads"), sessionHandler.List)
		sessions.GET("/:id", rl("reads"), sessionHandler.Get)
		sessions.POST("/:id/deposits", rl("deposits"), sessionHandler.Deposit)
		sessions.POST("/:id/finalize", rl("finalize"), sessionHandler.Finalize)
		sessions.POST("/:id/cancel", rl("sessions"), sessionHandler.Cancel)
		sessions.DELETE("/:id", rl("sessions"), sessionHandler.Close)
	}

	feeHandler := NewFeeHandler(deps.FeeSvc)
	fees := v1.Group("/fees", jwtAuth)
	{
		fees.POST("/withdraw", rl("fees"), feeHandler.Withdraw)
		fees.GET("/balance", rl("reads"), feeHandler.Balance)
	}

	walletHandler := NewWalletHandler(deps.HoldingRepo)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("", rl("reads"), walletHandler.GetBalances)
	}

	return r
}
