package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/cart"
	"github.com/xenking/atelier/internal/domain/coupon"
	"github.com/xenking/atelier/internal/domain/order"
	"github.com/xenking/atelier/internal/domain/settings"
	"github.com/xenking/atelier/internal/handler"
	"github.com/xenking/atelier/internal/jwtauth"
	"github.com/xenking/atelier/internal/notify"
	"github.com/xenking/atelier/internal/storage/postgres"
	"github.com/xenking/atelier/internal/storage/rediscache"
	"github.com/xenking/atelier/pkg/health"
	"github.com/xenking/atelier/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
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

	svc, err := newService(ctx, lg, m, cfg, pool)
	if err != nil {
		return err
	}
	defer svc.close()
	healthSvc := svc.health

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

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

// service is the assembled HTTP stack of the API.
type service struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService wires repositories, domain services and middleware on top of
// an initialised pool.
func newService(
	ctx context.Context,
	lg *zap.Logger,
	tel httpmiddleware.TelemetryProvider,
	cfg *Config,
	pool *pgxpool.Pool,
) (_ *service, rerr error) {
	healthSvc := health.New()
	svc := &service{health: healthSvc}
	defer func() {
		if rerr != nil {
			svc.close()
		}
	}()

	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second), health.WithThresholds(5, 1))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)

	var settingsStore settings.Store = postgres.NewSettingsRepository(pool)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, func() { _ = rdb.Close() })

		healthSvc.AddReadinessCheck("redis", time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		settingsStore = rediscache.NewSettingsCache(rdb, settingsStore, cfg.Redis.TTL)
		lg.Info("Site settings cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	shippingDefaults, err := cfg.Shipping.Policy()
	if err != nil {
		return nil, errors.Wrap(err, "shipping policy")
	}

	notifier, closeNotifier, err := newNotifier(lg, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create notifier")
	}
	svc.closers = append(svc.closers, closeNotifier)

	verifier, err := jwtauth.NewVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "create token verifier")
	}

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	orderService, err := order.NewService(
		productRepo,
		couponValidator,
		orderRepo,
		settings.NewStoreProvider(settingsStore, shippingDefaults),
		order.ServiceOptions{
			Currency:       cfg.Currency,
			Notifier:       notifier,
			NotifyTimeout:  cfg.NotifyTimeout,
			TracerProvider: tel.TracerProvider(),
			MeterProvider:  tel.MeterProvider(),
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	svc.closers = append(svc.closers, orderService.Close)
	cartService := cart.NewService(productRepo, cartRepo, cartRepo)

	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL},
		productRepo,
		couponValidator,
		orderService,
		cartService,
		verifier,
	)

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)

	svc.handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Location"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:        cfg.RateLimit.Max,
			Window:     cfg.RateLimit.Window,
			TrustProxy: cfg.RateLimit.TrustProxy,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("atelier-api", tel),
		httpmiddleware.LogRequests(),
	)
	return svc, nil
}

// newNotifier assembles the post-commit notifiers enabled in cfg. The
// returned func releases their connections.
func newNotifier(lg *zap.Logger, cfg *Config) (order.Notifier, func(), error) {
	var (
		notifiers notify.Multi
		closers   []func() error
	)

	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, w.Close)
		notifiers = append(notifiers, notify.NewKafka(w))
		lg.Info("Order events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Mail.Host != "" {
		client, err := notify.NewSMTPClient(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, notify.NewMail(client, cfg.Mail.From))
		lg.Info("Order confirmation emails enabled", zap.String("smtp", cfg.Mail.Host))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				lg.Warn("Close notifier", zap.Error(err))
			}
		}
	}
	return notifiers, closeAll, nil
}
