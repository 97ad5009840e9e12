package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/tiny11/tiny11-backend/api/routes"
	"github.com/tiny11/tiny11-backend/internal/checkout"
	"github.com/tiny11/tiny11-backend/internal/entitlements"
	"github.com/tiny11/tiny11-backend/internal/identities"
	"github.com/tiny11/tiny11-backend/internal/licenses"
	"github.com/tiny11/tiny11-backend/internal/reconciliation"
	"github.com/tiny11/tiny11-backend/internal/releases"
	"github.com/tiny11/tiny11-backend/pkg/config"
	"github.com/tiny11/tiny11-backend/pkg/db"
	"github.com/tiny11/tiny11-backend/pkg/emailtoken"
	"github.com/tiny11/tiny11-backend/pkg/logger"
	"github.com/tiny11/tiny11-backend/pkg/metrics"
	"github.com/tiny11/tiny11-backend/pkg/migrate"
	"github.com/tiny11/tiny11-backend/pkg/paypal"
	"github.com/tiny11/tiny11-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	svc, err := buildServices(cfg, logg, dbClient, redisClient, paymentMetrics)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"paypal_mode":  cfg.PayPal.Mode,
		"session_auth": cfg.Session.Enabled(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, registry, httpMetrics, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.PaymentMetrics) (routes.Services, error) {
	gdb := dbClient.DB()
	identityRepo := identities.NewRepository(gdb)
	releaseRepo := releases.NewRepository(gdb)

	tokens, err := emailtoken.NewCipher(cfg.EmailToken.Secret)
	if err != nil {
		return routes.Services{}, err
	}

	processor, err := paypal.NewClient(cfg.PayPal, paypal.WithMetrics(m))
	if err != nil {
		return routes.Services{}, err
	}

	releaseSvc, err := releases.NewService(releaseRepo, redisClient, cfg.Catalog.CacheTTL, logg)
	if err != nil {
		return routes.Services{}, err
	}

	licenseSvc, err := licenses.NewService(identityRepo, licenses.NewRepository(gdb), cfg.Site.SupportEmail, m)
	if err != nil {
		return routes.Services{}, err
	}

	entitlementSvc, err := entitlements.NewService(entitlements.NewRepository(gdb), identityRepo, releaseRepo)
	if err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(processor, releaseSvc, tokens, cfg.Site.BaseURL)
	if err != nil {
		return routes.Services{}, err
	}

	guard, err := reconciliation.NewInFlightGuard(redisClient, cfg.Reconciliation.InFlightTTL, "reconciliation")
	if err != nil {
		return routes.Services{}, err
	}

	reconciliationSvc, err := reconciliation.NewService(reconciliation.Params{
		Logger:       logg,
		DB:           dbClient,
		Transactions: reconciliation.NewTransactionRepository(gdb),
		Guard:        guard,
		Processor:    processor,
		Tokens:       tokens,
		Links:        releaseSvc,
		Metrics:      m,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Licenses:       licenseSvc,
		Entitlements:   entitlementSvc,
		Releases:       releaseSvc,
		Checkout:       checkoutSvc,
		Reconciliation: reconciliationSvc,
	}, nil
}
