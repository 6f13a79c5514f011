package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/optix-api/internal/auth"
	"github.com/ksred/optix-api/internal/contracts"
	"github.com/ksred/optix-api/internal/custody"
	"github.com/ksred/optix-api/internal/database"
	"github.com/ksred/optix-api/internal/pricing"
	"github.com/ksred/optix-api/internal/settlement"
	"github.com/ksred/optix-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Pick up a local .env if present
	_ = godotenv.Load()

	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the options settlement API server with graceful
// shutdown support. It sets up all required services, the database
// connection, the price feed and the settlement keeper.
func main() {
	// Initialize database
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "optix.db"
	}
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Select the price feed: live providers by default, canned fixtures
	// when PRICE_FEED=fixture
	var feed pricing.Feed
	if os.Getenv("PRICE_FEED") == "fixture" {
		feed = pricing.NewFixtureFeed()
		zlog.Info().Msg("using fixture price feed")
	} else {
		feed = pricing.NewLiveFeed()
	}

	// Initialize services and handlers
	authService := auth.NewService()
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestSellerKey, auth.TestSellerSecret)
	authService.RegisterAPICredentials(auth.TestBuyerKey, auth.TestBuyerSecret)

	ledger := custody.NewLedger(db)
	custodyHandlers := custody.NewGinHandlers(ledger)

	contractService := contracts.NewService(db, ledger, feed)
	contractHandlers := contracts.NewGinHandlers(contractService)

	settlementService := settlement.NewService(db, feed)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	// Create and start the settlement keeper
	processor := settlement.NewProcessor(settlementService, contractService)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, contractHandlers, settlementHandlers, custodyHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Contract routes: Protected by JWT authentication
// - Internal routes: Keeper endpoints (settlement and expiry are
// permissionless but still authenticated)
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	contractHandlers *contracts.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	custodyHandlers *custody.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Account routes
		accounts := v1.Group("/accounts")
		accounts.Use(middleware.JWTAuth())
		{
			accounts.POST("/deposit", custodyHandlers.DepositHandler())
			accounts.GET("/balance", custodyHandlers.BalanceHandler())
		}

		// Contract routes
		contractGroup := v1.Group("/contracts")
		contractGroup.Use(middleware.JWTAuth())
		{
			contractGroup.POST("", contractHandlers.InitializeHandler())
			contractGroup.GET("", contractHandlers.ListContractsHandler())
			contractGroup.GET("/:contract_id", contractHandlers.GetContractHandler())
			contractGroup.GET("/:contract_id/settlements", contractHandlers.GetSettlementHistoryHandler())
			contractGroup.POST("/:contract_id/purchase", contractHandlers.PurchaseHandler())
			contractGroup.POST("/:contract_id/delist", contractHandlers.DelistHandler())
			contractGroup.POST("/:contract_id/resell", contractHandlers.ResellHandler())
			contractGroup.POST("/:contract_id/exercise", contractHandlers.ExerciseHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/settlement/:contract_id", settlementHandlers.SettleContractHandler())
			internal.GET("/settlement/:settlement_id", settlementHandlers.GetSettlementHandler())
			internal.POST("/expire/:contract_id", contractHandlers.ExpireHandler())
		}
	}
}
