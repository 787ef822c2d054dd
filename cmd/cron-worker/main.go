package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/donations-backend/internal/bootstrap"
	"github.com/angelmondragon/donations-backend/internal/cron"
	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/metrics"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	cfg, logg, err := bootstrap.Load(serviceName)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "startup", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, logg)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "startup", err)
	}
	defer closeStore()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "connect redis", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "closing redis", err)
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	gateway, err := cashfree.NewClient(cfg.Cashfree, logg,
		cashfree.WithStatusRetries(cfg.Payments.StatusCheckRetries, 200*time.Millisecond),
		cashfree.WithObserver(paymentMetrics),
	)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create cashfree client", err)
	}
	serviceCfg, err := payments.NewServiceConfig(cfg.Payments, cfg.Callbacks)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "invalid payments config", err)
	}

	events := outbox.NewRepository(store.DB())
	orders := payments.NewRepository(store.DB())
	engine := payments.NewEngine(store, orders, outbox.NewService(events, logg), logg, paymentMetrics, payments.EngineConfig{
		Retries:    cfg.Payments.ReconcileRetries,
		RetryDelay: cfg.Payments.ReconcileRetryDelay,
	})
	paymentsService := payments.NewService(orders, engine, gateway, logg, paymentMetrics, serviceCfg)

	sweep, err := cron.NewPendingPaymentSweepJob(cron.PendingPaymentSweepJobParams{
		Logger:   logg,
		Payments: paymentsService,
		MinAge:   cfg.Payments.PendingSweepAge,
		Batch:    cfg.Payments.PendingSweepBatch,
	})
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create pending sweep job", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          store,
		Repository:  events,
		DeadLetters: outbox.NewDLQRepository(store.DB()),
		Retention:   cfg.Outbox.Retention,
	})
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create outbox retention job", err)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create cron lock", err)
	}

	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweep, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create cron service", err)
	}

	logg.Info(ctx, "cron worker started")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Fatal(ctx, logg, "cron worker stopped", err)
	}
	logg.Info(ctx, "cron worker stopped")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}
