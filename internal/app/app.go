// Package app wires the shop's dependencies together and runs the HTTP
// server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hivemarket/honeyshop/internal/api"
	"github.com/hivemarket/honeyshop/internal/audit"
	"github.com/hivemarket/honeyshop/internal/domain/cart"
	"github.com/hivemarket/honeyshop/internal/domain/discount"
	"github.com/hivemarket/honeyshop/internal/domain/order"
	"github.com/hivemarket/honeyshop/internal/notify"
	"github.com/hivemarket/honeyshop/internal/postgres"
	"github.com/hivemarket/honeyshop/pkg/health"
	"github.com/hivemarket/honeyshop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *sdkapp.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	cartStore := postgres.NewCartStore(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Audit trail.
	var auditor audit.Recorder = audit.Nop{}
	if cfg.AuditPath != "" {
		auditLog, err := audit.Open(cfg.AuditPath)
		if err != nil {
			return errors.Wrap(err, "open audit log")
		}
		defer func() {
			if err := auditLog.Close(); err != nil {
				lg.Warn("Audit log close failed", zap.Error(err))
			}
		}()
		auditor = auditLog
	}

	policy, err := cfg.DiscountPolicy()
	if err != nil {
		return err
	}

	// Domain services.
	ledger := discount.NewLedger(discountRepo, customerRepo)
	cartService := cart.NewService(cartStore, productRepo, customerRepo)
	orderService := order.NewService(
		order.Config{
			Policy:                 policy,
			ConfirmRequiresReceipt: cfg.Fulfillment.ConfirmRequiresReceipt,
		},
		productRepo,
		cartStore,
		customerRepo,
		ledger,
		orderRepo,
		notify.NewLogNotifier(lg),
		auditor,
		lg.Named("order"),
	)

	// HTTP handlers.
	h, err := api.NewHandler(productRepo, cartService, ledger, orderService)
	if err != nil {
		return errors.Wrap(err, "create api handler")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, api.OperatorAuth(apikeyRepo, []byte(cfg.APIKeyPepper)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(mux, "honeyshop",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
