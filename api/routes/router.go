package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiny11/tiny11-backend/api/controllers"
	"github.com/tiny11/tiny11-backend/api/middleware"
	"github.com/tiny11/tiny11-backend/internal/checkout"
	"github.com/tiny11/tiny11-backend/internal/entitlements"
	"github.com/tiny11/tiny11-backend/internal/licenses"
	"github.com/tiny11/tiny11-backend/internal/reconciliation"
	"github.com/tiny11/tiny11-backend/internal/releases"
	"github.com/tiny11/tiny11-backend/pkg/config"
	"github.com/tiny11/tiny11-backend/pkg/db"
	"github.com/tiny11/tiny11-backend/pkg/logger"
	"github.com/tiny11/tiny11-backend/pkg/metrics"
	"github.com/tiny11/tiny11-backend/pkg/redis"
)

// RedisStore is the redis surface the HTTP layer needs for health, rate
// limiting and idempotent replays.
type RedisStore interface {
	redis.Pinger
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Licenses       licenses.Service
	Entitlements   entitlements.Service
	Releases       releases.Service
	Checkout       checkout.Service
	Reconciliation reconciliation.Service
}

// NewRouter wires the public API. A nil redisStore disables rate limiting and
// idempotent replays; a nil gatherer hides /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.CORS),
	)

	rateStore := rateLimitStore(redisStore)
	idemStore := idempotencyStore(redisStore)
	licensePolicy := middleware.LicensePolicy(cfg.RateLimit)
	orderPolicy := middleware.OrderPolicy(cfg.RateLimit)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	if redisStore != nil {
		deps["redis"] = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, deps, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/os-releases", controllers.ListReleases(svc.Releases, logg))
		r.Get("/os-releases/{route}", controllers.GetRelease(svc.Releases, logg))
		r.Get("/download-creator", controllers.DownloadCreator(svc.Releases, logg))

		// The encrypted email token on the callback identifies the buyer.
		r.Post("/payment-success", controllers.PaymentSuccess(svc.Reconciliation, logg))
		r.Post("/subscription-success", controllers.SubscriptionSuccess(svc.Reconciliation, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, logg))

			r.Get("/license", controllers.LicenseQuery(svc.Licenses, logg))
			r.Get("/my-plan", controllers.MyPlan(svc.Licenses, logg))
			r.Get("/my-purchases", controllers.MyPurchases(svc.Entitlements, logg))
			r.Get("/check-standalone-purchase", controllers.CheckStandalonePurchase(svc.Entitlements, logg))
			r.Get("/subscription-status", controllers.SubscriptionStatus(svc.Entitlements, logg))
			r.Get("/entitlement", controllers.Entitlement(svc.Entitlements, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(licensePolicy, rateStore, logg))
				r.Post("/license", controllers.LicenseAction(svc.Licenses, logg))
				r.Post("/update-license-key", controllers.UpdateLicenseKey(svc.Licenses, logg))
			})

			r.Route("/paypal", func(r chi.Router) {
				r.Use(middleware.Idempotency(idemStore, logg))
				r.Use(middleware.RateLimit(orderPolicy, rateStore, logg))
				r.Post("/create-order", controllers.CreateOrder(svc.Checkout, logg))
				r.Post("/create-subscription-order", controllers.CreateSubscriptionOrder(svc.Checkout, logg))
				r.Post("/create-route-subscription-order", controllers.CreateRouteSubscriptionOrder(svc.Checkout, logg))
				r.Post("/capture-order", controllers.CaptureOrder(svc.Checkout, logg))
			})
		})
	})

	return r
}

// rateLimitStore and idempotencyStore keep a nil RedisStore a nil interface
// so the middleware can switch itself off.
func rateLimitStore(store RedisStore) middleware.RateLimitStore {
	if store == nil {
		return nil
	}
	return store
}

func idempotencyStore(store RedisStore) redis.IdempotencyStore {
	if store == nil {
		return nil
	}
	return store
}
