package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/donations-backend/api/routes"
	"github.com/angelmondragon/donations-backend/internal/bootstrap"
	"github.com/angelmondragon/donations-backend/internal/payments"
	cashfreewebhook "github.com/angelmondragon/donations-backend/internal/webhooks/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/cashfree"
	"github.com/angelmondragon/donations-backend/pkg/env"
	"github.com/angelmondragon/donations-backend/pkg/metrics"
	"github.com/angelmondragon/donations-backend/pkg/outbox"
	"github.com/angelmondragon/donations-backend/pkg/redis"
)

const (
	serviceName        = "api"
	webhookDedupeScope = "cashfree_webhook"
	shutdownTimeout    = 15 * time.Second
)

func main() {
	cfg, logg, err := bootstrap.Load(serviceName)
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "startup", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, closeStore, err := bootstrap.OpenStore(ctx, cfg, logg)
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	cashfreeClient, err := cashfree.NewClient(cfg.Cashfree, logg,
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

	paymentsRepo := payments.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	engine := payments.NewEngine(dbClient, paymentsRepo, outboxService, logg, paymentMetrics, payments.EngineConfig{
		Retries:    cfg.Payments.ReconcileRetries,
		RetryDelay: cfg.Payments.ReconcileRetryDelay,
	})
	paymentsService := payments.NewService(paymentsRepo, engine, cashfreeClient, logg, paymentMetrics, serviceCfg)

	webhookGuard, err := cashfreewebhook.NewIdempotencyGuard(redisClient, cfg.Cashfree.WebhookDedupeTTL, webhookDedupeScope)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create webhook guard", err)
	}
	webhookService, err := cashfreewebhook.NewService(cashfreewebhook.ServiceParams{
		Payments: paymentsService,
		Guard:    webhookGuard,
		Logger:   logg,
	})
	if err != nil {
		bootstrap.Fatal(ctx, logg, "create webhook service", err)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.Get("DYNO", "local"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			paymentsService,
			webhookService,
			cashfreeClient,
			paymentMetrics,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			bootstrap.Fatal(ctx, logg, "api server stopped", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
	}
}
