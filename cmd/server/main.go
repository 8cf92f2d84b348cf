package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vaultpay/backend/docs"
	"github.com/vaultpay/backend/internal/database"
	"github.com/vaultpay/backend/internal/events"
	"github.com/vaultpay/backend/internal/events/kafka"
	"github.com/vaultpay/backend/internal/executors"
	"github.com/vaultpay/backend/internal/handlers"
	mW "github.com/vaultpay/backend/internal/middleware"
	"github.com/vaultpay/backend/internal/services"
)

// @title VaultPay Balance Ledger API
// @version 1.0
// @description API for account balances, deposits, withdrawals and reconciliation
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("ledger.fee_account", "LEDGER_FEE_ACCOUNT")
	viper.BindEnv("ledger.currency", "LEDGER_CURRENCY")
	viper.BindEnv("ledger.executor_timeout", "LEDGER_EXECUTOR_TIMEOUT")
	viper.BindEnv("fees.withdrawal_percentage", "FEES_WITHDRAWAL_PERCENTAGE")
	viper.BindEnv("fees.withdrawal_fixed", "FEES_WITHDRAWAL_FIXED")

	viper.BindEnv("executors.default", "EXECUTORS_DEFAULT")
	viper.BindEnv("executors.stripe_url", "EXECUTORS_STRIPE_URL")
	viper.BindEnv("executors.stripe_api_key", "EXECUTORS_STRIPE_API_KEY")
	viper.BindEnv("executors.cashwallet_url", "EXECUTORS_CASHWALLET_URL")
	viper.BindEnv("executors.cashwallet_api_key", "EXECUTORS_CASHWALLET_API_KEY")
	viper.BindEnv("executors.crossborder_url", "EXECUTORS_CROSSBORDER_URL")
	viper.BindEnv("executors.crossborder_api_key", "EXECUTORS_CROSSBORDER_API_KEY")
	viper.BindEnv("executors.settlement_url", "EXECUTORS_SETTLEMENT_URL")
	viper.BindEnv("executors.debtor_bic", "EXECUTORS_DEBTOR_BIC")

	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("reconciler.interval", "RECONCILER_INTERVAL")
	viper.BindEnv("reconciler.min_age", "RECONCILER_MIN_AGE")
	viper.BindEnv("reconciler.batch_size", "RECONCILER_BATCH_SIZE")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "VaultPay Balance Ledger API"
	docs.SwaggerInfo.Description = "API for account balances, deposits, withdrawals and reconciliation"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher
	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(brokers)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Kafka publisher connected to %v", brokers)
	} else {
		log.Println("Kafka brokers not configured, events disabled")
	}

	execTimeout := viper.GetDuration("ledger.executor_timeout")
	registry := executors.NewRegistry(
		executors.NewStripePayoutExecutor(
			viper.GetString("executors.stripe_url"),
			viper.GetString("executors.stripe_api_key"),
			execTimeout),
		executors.NewCashWalletExecutor(
			viper.GetString("executors.cashwallet_url"),
			viper.GetString("executors.cashwallet_api_key"),
			execTimeout),
		executors.NewCrossBorderExecutor(
			viper.GetString("executors.crossborder_url"),
			viper.GetString("executors.crossborder_api_key"),
			execTimeout),
		executors.NewBankTransferExecutor(
			viper.GetString("executors.settlement_url"),
			viper.GetString("executors.debtor_bic"),
			execTimeout),
		executors.NewSandboxExecutor(),
	)
	log.Printf("Transfer executors registered: %v", registry.Names())

	txLog := services.NewTransactionLog(db)
	ledger := services.NewLedgerService(db, txLog, publisher)

	viper.SetDefault("executors.default", "banktransfer")
	walletService := services.NewWalletService(ledger, txLog, registry, viper.GetString("executors.default"))
	authService := services.NewAuthService(db, redisClient)
	paymentMethodService := services.NewPaymentMethodService(db)
	qrService := services.NewQRService(db, redisClient)
	qrHandler := handlers.NewQRHandler(qrService)
	bankService := services.NewBankService()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Reconciler sweeps withdrawals whose rail outcome is unknown
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	reconciler := services.NewReconciler(ledger, txLog, registry)
	go reconciler.Run(reconcilerCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for bank logos
	r.Handle("/static/bank-logos/*", http.StripPrefix("/static/bank-logos/",
		mW.StaticFileServer("./static/bank-logos")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/banks", bankService.GetAllBanks)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Wallet endpoints
			r.Get("/wallet/balance", walletService.GetBalance)
			r.Get("/wallet/transactions", walletService.ListTransactions)
			r.Post("/wallet/deposit", walletService.Deposit)
			r.Post("/wallet/withdraw", walletService.Withdraw)

			// Payment method endpoints
			r.Get("/payment-methods", paymentMethodService.ListPaymentMethods)
			r.Post("/payment-methods", paymentMethodService.AddPaymentMethod)
			r.Delete("/payment-methods/{id}", paymentMethodService.DeletePaymentMethod)

			// QR endpoints
			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/process", qrHandler.ProcessQR)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopReconciler()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
