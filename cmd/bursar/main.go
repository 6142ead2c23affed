package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bursar/internal/handlers"
	"bursar/internal/providers"
	"bursar/internal/providers/razorpay"
	"bursar/internal/providers/stripe"
	"bursar/internal/reconcile"
	"bursar/pkg/auth"
	"bursar/pkg/config"
	"bursar/pkg/database"
	"bursar/pkg/logging"
	"bursar/pkg/monitoring"
	"bursar/pkg/redis"
	"bursar/pkg/server"
	"bursar/pkg/version"
)

// redisPinger narrows the go-redis client to the shape the health checker
// wants.
type redisPinger struct{ c *goredis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("bursar")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Bursar (Credits API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	stripeKey := config.RequireEnv("STRIPE_SECRET_KEY")
	stripeWebhookSecret := config.RequireEnv("STRIPE_WEBHOOK_SECRET")
	razorpayKeyID := config.RequireEnv("RAZORPAY_KEY_ID")
	razorpayKeySecret := config.RequireEnv("RAZORPAY_KEY_SECRET")
	appOrigin := config.GetEnv("APP_ORIGIN", "http://localhost:5173")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if config.GetEnvBool("DB_MIGRATE", true) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Schema migration failed")
		}
	}

	// Optional Redis for cross-instance webhook replay protection. Without
	// it the replay guard runs per-process, which is still safe because
	// crediting is idempotent.
	var redisClient *goredis.Client
	if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		client, err := redis.NewClientFromURL(context.Background(), redisURL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using in-process replay protection")
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("bursar", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("bursar", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":      dbURL,
		"JWT_SECRET":        jwtSecret,
		"STRIPE_SECRET_KEY": stripeKey,
	}))
	var redisPing interface{ Ping(context.Context) error }
	if redisClient != nil {
		redisPing = redisPinger{redisClient}
	}
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisPing))

	// Payment adapters, wrapped so transient provider failures are retried
	// and exhaustion surfaces as an unreachable error rather than a denial.
	retryCfg := providers.DefaultRetryConfig()
	stripeClient := stripe.New(stripe.Config{
		SecretKey:     stripeKey,
		WebhookSecret: stripeWebhookSecret,
		Logger:        logger,
	})
	stripeAdapter := providers.WithRetry(stripeClient, retryCfg, logger)
	razorpayAdapter := providers.WithRetry(razorpay.New(razorpay.Config{
		KeyID:     razorpayKeyID,
		KeySecret: razorpayKeySecret,
		Logger:    logger,
	}), retryCfg, logger)

	// Initialize handlers
	handlers.Init(handlers.Config{
		DB:             db,
		Logger:         logger,
		Stripe:         stripeAdapter,
		Razorpay:       razorpayAdapter,
		StripeWebhooks: stripeClient,
		Redis:          redisClient,
		AppOrigin:      appOrigin,
		Metrics:        handlers.NewMetrics(metricsCollector),
	})

	// Background sweeper repairs partial credits and expires stale
	// transactions.
	ttl := time.Duration(config.GetEnvInt("TRANSACTION_TTL_HOURS", 24)) * time.Hour
	sweeper := reconcile.NewSweeper(db, handlers.Balances(), handlers.Store(), logger, reconcile.SweeperConfig{
		TTL: ttl,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx)
	defer sweeper.Stop()

	logger.Info("Sweeper started - partial credit repair and expiry active")

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "bursar", healthChecker, metricsCollector)

	// API routes
	{
		router.GET("/billing/plans", handlers.GetPlans)

		// Authentication required endpoints
		protected := router.Group("")
		protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
		{
			protected.GET("/credits", handlers.GetCredits)
			protected.POST("/payments/stripe", handlers.CreateStripeCheckout)
			protected.POST("/payments/razorpay", handlers.CreateRazorpayCheckout)
		}

		// Verification callbacks arrive from browser redirects without auth
		// headers; crediting is gated on provider state, not the caller.
		router.POST("/verify/stripe", handlers.VerifyStripe)
		router.POST("/verify/razorpay", handlers.VerifyRazorpay)

		// Webhook endpoints (signature-verified, no auth required)
		router.POST("/webhooks/stripe", handlers.HandleStripeWebhook)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("bursar", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
