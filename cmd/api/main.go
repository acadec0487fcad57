package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/taxcredit-backend/api/controllers"
	"github.com/angelmondragon/taxcredit-backend/api/routes"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/auth"
	"github.com/angelmondragon/taxcredit-backend/internal/fees"
	"github.com/angelmondragon/taxcredit-backend/internal/holds"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/internal/notifications"
	"github.com/angelmondragon/taxcredit-backend/internal/orders"
	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	"github.com/angelmondragon/taxcredit-backend/internal/users"
	stripewebhook "github.com/angelmondragon/taxcredit-backend/internal/webhooks/stripe"
	usdcwebhook "github.com/angelmondragon/taxcredit-backend/internal/webhooks/usdc"
	"github.com/angelmondragon/taxcredit-backend/pkg/auth/session"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/migrate"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/taxcredit-backend/pkg/redis"
	"github.com/angelmondragon/taxcredit-backend/pkg/stripe"
)

const stripeEventTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	businessMetrics := metrics.NewBusinessMetrics(registry)

	gormDB := dbClient.DB()
	auditWriter := audit.NewWriter(gormDB, logg)
	auditService, err := audit.NewService(gormDB)
	exitOnErr(ctx, logg, "failed to create audit service", err)

	accessRepo := access.NewRepository(gormDB)
	gate, err := access.NewGate(accessRepo)
	exitOnErr(ctx, logg, "failed to create access gate", err)
	accessService, err := access.NewService(access.ServiceParams{Repo: accessRepo, Audit: auditWriter})
	exitOnErr(ctx, logg, "failed to create access service", err)

	lotRepo := inventory.NewRepository(gormDB)
	inventoryService, err := inventory.NewService(inventory.ServiceParams{Repo: lotRepo, Audit: auditWriter})
	exitOnErr(ctx, logg, "failed to create inventory service", err)

	calculator := fees.NewCalculator(cfg.Fees)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	holdService, err := holds.NewService(holds.ServiceParams{
		DB:        dbClient,
		Repo:      holds.NewRepository(gormDB),
		Inventory: lotRepo,
		Gate:      gate,
		Outbox:    outboxService,
		Audit:     auditWriter,
		Metrics:   businessMetrics,
		Logger:    logg,
		TTL:       cfg.Holds.TTL,
	})
	exitOnErr(ctx, logg, "failed to create hold service", err)

	var stripeClient *stripe.Client
	if !cfg.Payments.IsDemo() {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		exitOnErr(ctx, logg, "failed to create stripe client", err)
	}

	orderRepo := orders.NewRepository(gormDB)
	orderParams := orders.ServiceParams{
		DB:        dbClient,
		Repo:      orderRepo,
		Inventory: lotRepo,
		Holds:     holdService,
		Companies: accessRepo,
		Gate:      gate,
		Fees:      calculator,
		Payments:  cfg.Payments,
		PublicURL: cfg.App.PublicURL,
		Outbox:    outboxService,
		Audit:     auditWriter,
		Metrics:   businessMetrics,
		Logger:    logg,
	}
	if stripeClient != nil {
		orderParams.Checkout = stripeClient
	}
	orderService, err := orders.NewService(orderParams)
	exitOnErr(ctx, logg, "failed to create order service", err)

	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:        dbClient,
		Orders:    orderRepo,
		Inventory: lotRepo,
		Transfers: payments.NewTransferRepository(gormDB),
		Outbox:    outboxService,
		Audit:     auditWriter,
		Metrics:   businessMetrics,
		Logger:    logg,
	})
	exitOnErr(ctx, logg, "failed to create payment service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB), gate)
	exitOnErr(ctx, logg, "failed to create notification service", err)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(gormDB),
		SessionManager: sessionManager,
		Audit:          auditWriter,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	exitOnErr(ctx, logg, "failed to create auth service", err)

	params := routes.RouterParams{
		Config:   cfg,
		Logger:   logg,
		Registry: registry,
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Sessions:      sessionManager,
		Idempotency:   redisClient,
		Limiter:       redisClient,
		Auth:          authService,
		Lots:          inventoryService,
		Fees:          calculator,
		Holds:         holdService,
		Orders:        orderService,
		Payments:      paymentService,
		Audit:         auditService,
		Accountants:   accessService,
		Notifications: notificationService,
	}

	if stripeClient != nil {
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Payments: paymentService,
			Orders:   orderRepo,
			Logger:   logg,
		})
		exitOnErr(ctx, logg, "failed to create stripe webhook service", err)
		guard, err := idempotency.NewGuard(redisClient, "stripe-webhook", stripeEventTTL)
		exitOnErr(ctx, logg, "failed to create stripe webhook guard", err)
		params.StripeWebhook = webhookService
		params.StripeSecrets = stripeClient
		params.StripeGuard = guard
		logg.Info(logg.WithField(ctx, "stripe_env", stripeClient.Environment()), "stripe webhooks enabled")
	}

	if cfg.Payments.USDCWebhookSecret != "" {
		usdcService, err := usdcwebhook.NewService(usdcwebhook.ServiceParams{
			Secret:   cfg.Payments.USDCWebhookSecret,
			Wallet:   cfg.Payments.USDCWallet,
			Payments: paymentService,
			Logger:   logg,
		})
		exitOnErr(ctx, logg, "failed to create usdc webhook service", err)
		params.USDCWebhook = usdcService
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"instance":      id,
		"payments_mode": cfg.Payments.Mode,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
