package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/foodmarket/internal/auth/jwt"
	"github.com/xenking/foodmarket/internal/domain/cart"
	"github.com/xenking/foodmarket/internal/domain/checkout"
	"github.com/xenking/foodmarket/internal/domain/notification"
	"github.com/xenking/foodmarket/internal/domain/order"
	"github.com/xenking/foodmarket/internal/gateway/paystack"
	"github.com/xenking/foodmarket/internal/handler"
	"github.com/xenking/foodmarket/internal/storage/kafka"
	"github.com/xenking/foodmarket/pkg/health"
	"github.com/xenking/foodmarket/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	healthSvc := health.New(lg)
	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	st, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	var publisher notification.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		healthSvc.Register(health.Readiness, "kafka", health.DialCheck(cfg.Kafka.Brokers...))
		publisher = p
		lg.Info("Notification publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	verifier, err := jwt.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return errors.Wrap(err, "create token verifier")
	}
	gateway, err := paystack.New(paystack.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
	})
	if err != nil {
		return errors.Wrap(err, "create payment gateway")
	}
	fees, err := cfg.Fees.Schedule()
	if err != nil {
		return errors.Wrap(err, "fees")
	}
	policy, err := order.ParsePolicy(cfg.Orders.Transitions)
	if err != nil {
		return errors.Wrap(err, "transition policy")
	}

	// Domain services.
	notificationService := notification.NewService(st.notifications, publisher)
	checkoutService, err := checkout.NewService(st.carts, st.orders, gateway, notificationService,
		checkout.Config{
			Fees:        fees,
			Currency:    cfg.Gateway.Currency,
			Channels:    cfg.Gateway.Channels,
			CallbackURL: cfg.Gateway.CallbackURL,
		},
		checkout.WithTracerProvider(m.TracerProvider()),
		checkout.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}
	h := handler.New(
		cart.NewService(st.carts),
		checkoutService,
		order.NewService(st.orders, policy),
		notificationService,
	)

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	mux := http.NewServeMux()
	healthSvc.Mount(mux)
	h.Register(mux, verifier, limiter.Middleware(handler.SubjectKey))
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("foodmarket-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
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
