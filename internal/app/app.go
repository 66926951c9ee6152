// Package app wires configuration, storage, domain services and the HTTP
// server into a runnable application.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/souqline/checkout-api/internal/domain/coupon"
	"github.com/souqline/checkout-api/internal/domain/inventory"
	"github.com/souqline/checkout-api/internal/domain/order"
	"github.com/souqline/checkout-api/internal/httpapi"
	"github.com/souqline/checkout-api/internal/notification"
	"github.com/souqline/checkout-api/internal/payment"
	"github.com/souqline/checkout-api/internal/payment/stripe"
	"github.com/souqline/checkout-api/internal/repository"
	"github.com/souqline/checkout-api/pkg/health"
	"github.com/souqline/checkout-api/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Liveness and readiness probes.
	probes := health.New()
	probes.AddReadiness("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	probes.AddLiveness("goroutines", time.Second, health.MaxGoroutines(10000))
	probes.Start(ctx, 10*time.Second)
	probes.Accept()

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Payment gateways, keyed by order payment method. Cash needs none;
	// methods without an entry fail payment initiation with a clear error.
	gateways := map[order.PaymentMethod]payment.Gateway{}
	if cfg.Stripe.SecretKey != "" {
		gateways[order.MethodStripe] = stripe.New(stripe.Config{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		})
	} else {
		lg.Warn("Stripe secret key not configured, gateway payments disabled")
	}

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	couponService := coupon.NewService(couponRepo)
	reserver := inventory.NewReserver(productRepo)
	orderService := order.NewService(
		order.ServiceConfig{
			Currency:     cfg.Currency,
			CancelWindow: cfg.CancelWindow,
		},
		orderRepo,
		productRepo,
		cartRepo,
		couponRepo,
		couponValidator,
		reserver,
		gateways,
		notification.LogSink{},
	)

	// HTTP surface.
	auth := httpapi.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := httpapi.NewHandler(orderService, couponService, auth)

	api := otelhttp.NewHandler(h.Routes(), "souqline-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", probes.ServeLivez)
	mux.HandleFunc("/readyz", probes.ServeReadyz)
	mux.Handle("/api/", http.StripPrefix("/api", api))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		probes.Drain()
		lg.Info("Draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		probes.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
