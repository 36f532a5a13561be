package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/squareup-service/internal/adapters/mail"
	"github.com/kevin07696/squareup-service/internal/adapters/postgres"
	"github.com/kevin07696/squareup-service/internal/adapters/redis"
	"github.com/kevin07696/squareup-service/internal/adapters/session"
	"github.com/kevin07696/squareup-service/internal/adapters/square"
	"github.com/kevin07696/squareup-service/internal/config"
	"github.com/kevin07696/squareup-service/internal/credentials"
	"github.com/kevin07696/squareup-service/internal/domain"
	cronHandler "github.com/kevin07696/squareup-service/internal/handlers/cron"
	oauthHandler "github.com/kevin07696/squareup-service/internal/handlers/oauth"
	paymentHandler "github.com/kevin07696/squareup-service/internal/handlers/payment"
	webhookHandler "github.com/kevin07696/squareup-service/internal/handlers/webhook"
	"github.com/kevin07696/squareup-service/internal/middleware"
	cronService "github.com/kevin07696/squareup-service/internal/services/cron"
	oauthService "github.com/kevin07696/squareup-service/internal/services/oauth"
	paymentService "github.com/kevin07696/squareup-service/internal/services/payment"
	webhookService "github.com/kevin07696/squareup-service/internal/services/webhook"
	pkghttp "github.com/kevin07696/squareup-service/pkg/http"
	pkgmiddleware "github.com/kevin07696/squareup-service/pkg/middleware"
	"github.com/kevin07696/squareup-service/pkg/observability"
	"github.com/kevin07696/squareup-service/pkg/resilience"
	"github.com/kevin07696/squareup-service/pkg/security"
	"github.com/kevin07696/squareup-service/pkg/shutdown"
)

const (
	startupAttempts      = 5
	defaultWebhookPath   = "/webhooks/square"
	notifyThrottlePrefix = "squareup:notify:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting squareup service",
		zap.String("environment", cfg.Server.Environment),
		zap.Bool("sandbox", cfg.Square.Sandbox),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	shutdownMgr.RegisterNoErr("postgres", db.Close)

	rdb, err := initRedis(ctx, cfg, logger)
	if err != nil {
		_ = shutdownMgr.Shutdown()
		return err
	}
	shutdownMgr.RegisterCloser("redis", rdb)

	deps, err := initDependencies(ctx, cfg, db, rdb, logger)
	if err != nil {
		_ = shutdownMgr.Shutdown()
		return err
	}
	shutdownMgr.RegisterNoErr("rate-limiter", deps.rateLimiter.Shutdown)

	if cfg.Cron.Interval > 0 {
		worker := shutdown.NewPeriodicWorker("cron-tick", cfg.Cron.Interval, logger)
		worker.Start(func(ctx context.Context) {
			if _, err := deps.cron.RunTick(ctx); err != nil {
				logger.Error("Scheduled cron tick failed", zap.Error(err))
			}
		})
		shutdownMgr.Register("cron-worker", worker.Shutdown)
	}

	pingRedis := observability.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthChecker := observability.NewHealthChecker(map[string]observability.Pinger{
		"postgres": db,
		"redis":    pingRedis,
	})
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	shutdownMgr.RegisterHTTPServer("metrics-server", metricsServer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           newRouter(cfg, deps, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.RegisterHTTPServer("http-server", httpServer)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	err = shutdownMgr.WaitForSignal(waitCtx)
	select {
	case listenErr := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", listenErr), err)
	default:
		return err
	}
}

// Dependencies holds the initialized services and handlers
type Dependencies struct {
	cron           *cronService.Service
	oauthHandler   *oauthHandler.Handler
	paymentHandler *paymentHandler.Handler
	webhookHandler *webhookHandler.Handler
	eventsHandler  *webhookHandler.EventsHandler
	cronHandler    *cronHandler.Handler
	rateLimiter    *pkgmiddleware.RateLimiter
}

// initDependencies initializes all services and handlers with dependency injection
func initDependencies(ctx context.Context, cfg *config.Config, db *postgres.DB, rdb *goredis.Client, logger *zap.Logger) (*Dependencies, error) {
	adapterLogger := security.NewZapLogger(logger)

	payments := postgres.NewPaymentRepository(db)
	events := postgres.NewWebhookEventRepository(db)
	orders := postgres.NewOrderHistory(db)
	subscriptions := postgres.NewSubscriptionRepository(db)

	currencies, err := postgres.LoadCurrencyTable(ctx, db)
	if err != nil {
		return nil, err
	}

	settings, err := initSettingsStore(ctx, cfg.Secrets, postgres.NewSettingsStore(db), logger)
	if err != nil {
		return nil, err
	}
	if err := seedSettings(ctx, cfg.Square, settings); err != nil {
		return nil, err
	}

	creds := credentials.NewStore(settings, adapterLogger)
	if _, err := creds.EnsureKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to provision encryption key: %w", err)
	}

	squareCfg := square.DefaultConfig()
	squareCfg.Debug = cfg.Square.Debug
	if cfg.Square.BaseURL != "" {
		squareCfg.BaseURL = cfg.Square.BaseURL
	}
	if cfg.Square.SandboxBaseURL != "" {
		squareCfg.SandboxBaseURL = cfg.Square.SandboxBaseURL
	}
	squareClient := square.NewClient(squareCfg, creds, pkghttp.NewSquareClient(), adapterLogger)

	mailer := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	}, adapterLogger)
	throttle := redis.NewThrottle(rdb, notifyThrottlePrefix)

	statuses := domain.OrderStatusMapper{
		Authorized:   cfg.OrderStatus.Authorized,
		Captured:     cfg.OrderStatus.Captured,
		Voided:       cfg.OrderStatus.Voided,
		Failed:       cfg.OrderStatus.Failed,
		DelayCapture: cfg.Square.DelayCapture,
	}

	// Services
	oauthSvc := oauthService.NewService(squareClient, creds, logger)
	alerts := paymentService.NewTokenAlerter(mailer, throttle, creds, cfg.Admin.Email, logger)
	paymentSvc := paymentService.NewService(squareClient, payments, orders, currencies, creds, alerts, statuses, logger)
	processor := webhookService.NewProcessor(cfg.Square.WebhookURL, statuses, db, events, payments, orders, creds, logger)
	cronSvc := cronService.NewService(oauthSvc, creds, paymentSvc, subscriptions, orders, currencies, mailer, cronService.Config{
		StoreCurrency:          cfg.StoreCurrency,
		SummaryEmail:           cfg.Cron.SummaryEmail,
		NotifyRecurringSuccess: cfg.Cron.NotifyRecurringSuccess,
		NotifyRecurringFail:    cfg.Cron.NotifyRecurringFail,
		StatusAuthorized:       cfg.OrderStatus.Authorized,
		StatusCaptured:         cfg.OrderStatus.Captured,
		StatusFailed:           cfg.OrderStatus.Failed,
		StatusDefault:          cfg.OrderStatus.Default,
	}, logger)

	// Handlers
	sessions := session.NewCookieStore([]byte(cfg.Session.Key), cfg.Session.Secure)
	loadSession := func(r *http.Request) (oauthHandler.Session, error) {
		sess, err := sessions.Load(r)
		if sess == nil {
			return nil, err
		}
		return sess, err
	}

	return &Dependencies{
		cron:           cronSvc,
		oauthHandler:   oauthHandler.NewHandler(oauthSvc, loadSession, cfg.Square.OAuthRedirectURL, cfg.Square.OAuthSuccessURL, logger),
		paymentHandler: paymentHandler.NewHandler(paymentSvc, cfg.StoreCurrency, logger),
		webhookHandler: webhookHandler.NewHandler(processor, logger),
		eventsHandler:  webhookHandler.NewEventsHandler(events, processor, logger),
		cronHandler:    cronHandler.NewHandler(cronSvc, logger, cfg.Cron.Secret),
		rateLimiter: pkgmiddleware.NewRateLimiter(pkgmiddleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.WebhookRPS,
			Burst:             cfg.RateLimit.WebhookBurst,
		}, logger),
	}, nil
}

// newRouter mounts the public webhook and cron endpoints and the admin surface.
// Admin routes (OAuth connection, payment operations and webhook event replay) live under /admin behind basic auth.
func newRouter(cfg *config.Config, deps *Dependencies, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(webhookPath(cfg.Square.WebhookURL), deps.rateLimiter.Middleware(deps.webhookHandler))
	deps.cronHandler.Routes(mux)

	adminMux := http.NewServeMux()
	deps.oauthHandler.Routes(adminMux)
	deps.paymentHandler.Routes(adminMux)
	deps.eventsHandler.Routes(adminMux)
	adminAuth := middleware.NewAdminAuth(cfg.Admin.User, cfg.Admin.Password, logger)
	mux.Handle("/admin/", http.StripPrefix("/admin", adminAuth.Middleware(adminMux)))

	headers := middleware.NewSecurityHeaders(cfg.IsDevelopment())
	return headers.Middleware(observability.HTTPMiddleware("squareup", mux))
}

// webhookPath is the path component of the registered notification URL
func webhookPath(notificationURL string) string {
	u, err := url.Parse(notificationURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultWebhookPath
	}
	return u.Path
}

// initLogger builds the zap logger for the configured level
func initLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// initDatabase opens the pool with retries and applies pending migrations
func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.DB, error) {
	dbCfg := postgres.DefaultConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.QueryTimeout = cfg.Database.QueryTimeout

	var db *postgres.DB
	err := resilience.Retry(ctx, startupAttempts, resilience.StartupBackoff(), func(ctx context.Context) error {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var err error
		db, err = postgres.Open(connectCtx, dbCfg, logger)
		return err
	}, logRetry(logger, "postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := postgres.MigrateUp(dbCfg.DatabaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied")
	return db, nil
}

// initRedis connects the notification throttle store with retries
func initRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*goredis.Client, error) {
	redisCfg := redis.Config{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	var client *goredis.Client
	err := resilience.Retry(ctx, startupAttempts, resilience.StartupBackoff(), func(ctx context.Context) error {
		var err error
		client, err = redis.NewClient(ctx, redisCfg, security.NewZapLogger(logger))
		return err
	}, logRetry(logger, "redis"))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func logRetry(logger *zap.Logger, dependency string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		logger.Warn("Dependency not ready, retrying",
			zap.String("dependency", dependency),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
