package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/cron"
	"github.com/angelmondragon/taxcredit-backend/internal/holds"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/internal/notifications"
	"github.com/angelmondragon/taxcredit-backend/internal/orders"
	"github.com/angelmondragon/taxcredit-backend/internal/payments"
	"github.com/angelmondragon/taxcredit-backend/pkg/bigquery"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/metrics"
	"github.com/angelmondragon/taxcredit-backend/pkg/migrate"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run the selected jobs a single time and exit")
	only := flag.String("job", "", "comma-separated job names to run (default: all)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, cleanup, err := buildJobs(context.Background(), cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}
	defer cleanup()

	registry, err := cron.NewRegistry(jobs...).Only(strings.Split(*only, ",")...)
	if err != nil {
		logg.Error(context.Background(), "invalid -job selection", err)
		os.Exit(2)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
	})

	if *once {
		logg.Info(ctx, "running cron jobs once")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics endpoint stopped", err)
		}
	}()
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildJobs wires the periodic sweeps. The returned cleanup closes any
// exporter clients opened along the way.
func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) ([]cron.Job, func(), error) {
	cleanup := func() {}
	gormDB := dbClient.DB()

	auditWriter := audit.NewWriter(gormDB, logg)
	businessMetrics := metrics.NewBusinessMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	lotRepo := inventory.NewRepository(gormDB)

	gate, err := access.NewGate(access.NewRepository(gormDB))
	if err != nil {
		return nil, cleanup, err
	}
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
	if err != nil {
		return nil, cleanup, err
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:        dbClient,
		Orders:    orders.NewRepository(gormDB),
		Inventory: lotRepo,
		Transfers: payments.NewTransferRepository(gormDB),
		Outbox:    outboxService,
		Audit:     auditWriter,
		Metrics:   businessMetrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, cleanup, err
	}

	holdJob, err := cron.NewHoldExpiryJob(cron.HoldExpiryJobParams{
		Logger:    logg,
		Holds:     holdService,
		BatchSize: cfg.Cron.HoldReclaimBatch,
	})
	if err != nil {
		return nil, cleanup, err
	}
	timeoutJob, err := cron.NewPaymentTimeoutJob(cron.PaymentTimeoutJobParams{
		Logger:     logg,
		Payments:   paymentService,
		PendingTTL: cfg.Payments.PendingTTL,
	})
	if err != nil {
		return nil, cleanup, err
	}
	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Outbox:        outbox.NewRepository(gormDB),
		Notifications: notifications.NewRepository(gormDB),
	})
	if err != nil {
		return nil, cleanup, err
	}
	jobs := []cron.Job{holdJob, timeoutJob, retentionJob}

	if !cfg.Cron.SummaryEnabled {
		return jobs, cleanup, nil
	}

	auditService, err := audit.NewService(gormDB)
	if err != nil {
		return nil, cleanup, err
	}
	summaryParams := cron.AuditSummaryJobParams{
		Logger:       logg,
		Summaries:    auditService,
		Marker:       redisClient,
		MarkerKey:    func(day string) string { return redisClient.CounterKey("audit-summary:" + day) },
		LookbackDays: cfg.Cron.SummaryLookbackDay,
	}
	if cfg.BigQuery.Enabled() {
		bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			return nil, cleanup, err
		}
		summaryParams.Exporter = bq
		cleanup = func() {
			if err := bq.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}
	}
	summaryJob, err := cron.NewAuditSummaryJob(summaryParams)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return append(jobs, summaryJob), cleanup, nil
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
