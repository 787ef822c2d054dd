package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/donations-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/donations-backend/api/controllers/webhooks"
	"github.com/angelmondragon/donations-backend/api/middleware"
	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/metrics"
	"github.com/angelmondragon/donations-backend/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs: idempotent replays,
// public rate limits and readiness.
type Store interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store Store,
	paymentsService payments.Service,
	webhookService webhookcontrollers.CashfreeWebhookService,
	webhookVerifier webhookcontrollers.SignatureVerifier,
	paymentMetrics *metrics.PaymentMetrics,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Callbacks.FrontendURL),
	)

	donationPolicy := middleware.NewRateLimitPolicy(
		"public_donation",
		cfg.RateLimit.PublicDonationWindow,
		cfg.RateLimit.PublicDonationLimit,
		cfg.RateLimit.PublicDonationLimit,
	)
	verifyPolicy := middleware.NewRateLimitPolicy(
		"public_verify",
		cfg.RateLimit.PublicDonationWindow,
		cfg.RateLimit.PublicVerifyLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    store,
		}, logg))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/cashfree", webhookcontrollers.CashfreeWebhook(webhookService, webhookVerifier, paymentMetrics, logg))
	})

	r.Route("/api/public/v1/payments", func(r chi.Router) {
		r.With(
			middleware.RateLimit(donationPolicy, store, store.RateLimitKey, logg),
			middleware.Idempotency(store, logg),
		).Post("/", controllers.CreateVisitorDonation(paymentsService, logg))
		r.With(middleware.RateLimit(verifyPolicy, store, store.RateLimitKey, logg)).
			Post("/verify", controllers.PublicVerifyPayment(paymentsService, logg))
		r.Get("/{orderId}", controllers.PublicGetPayment(paymentsService, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))
		r.Post("/registration", controllers.CreateRegistrationPayment(paymentsService, logg))
		r.Post("/donations", controllers.CreateMemberDonation(paymentsService, logg))
		r.Get("/", controllers.ListMyPayments(paymentsService, logg))
		r.Get("/{orderId}", controllers.GetPayment(paymentsService, logg))
		r.Post("/{orderId}/verify", controllers.VerifyPayment(paymentsService, logg))
	})

	r.Route("/api/admin/v1/payments", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRoles(logg, enums.MemberRoleAdmin, enums.MemberRoleManager))
		r.Get("/", controllers.AdminListPayments(paymentsService, logg))
		r.Get("/stats", controllers.AdminPaymentStats(paymentsService, logg))
		r.Delete("/{orderId}", controllers.AdminDeletePayment(paymentsService, logg))
	})

	return r
}
