package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/port"
	"github.com/d56845684/edu-auth-service/internal/infra/config"
	"github.com/d56845684/edu-auth-service/internal/infra/database"
	kafkainfra "github.com/d56845684/edu-auth-service/internal/infra/kafka"
	"github.com/d56845684/edu-auth-service/internal/infra/logger"
	redisinfra "github.com/d56845684/edu-auth-service/internal/infra/redis"
	"github.com/d56845684/edu-auth-service/internal/infra/security"
	"github.com/d56845684/edu-auth-service/internal/infra/telemetry"
	"github.com/d56845684/edu-auth-service/internal/provider/line"
	"github.com/d56845684/edu-auth-service/internal/provider/supabase"
	postgresrepo "github.com/d56845684/edu-auth-service/internal/repository/postgres"
	redisrepo "github.com/d56845684/edu-auth-service/internal/repository/redis"
	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/transport/http/routes"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// Application bundles the long-lived resources of the service.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tracing *telemetry.TracerProvider
}

// New wires configuration, infrastructure clients, repositories, services
// and the HTTP engine.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	sessionStore := redisrepo.NewSessionRepository(redisClient.Client(), redisrepo.SessionConfig{
		KeyPrefix:      cfg.Session.KeyPrefix,
		IndexKeyPrefix: cfg.Session.IndexKeyPrefix,
		TTL:            cfg.Session.TTL,
	})
	stateStore := redisrepo.NewStateRepository(redisClient.Client())
	cacheStore := redisrepo.NewCacheRepository(redisClient.Client())

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "rate_limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	profileRepo := postgresrepo.NewProfileRepository(pool)
	bindingRepo := postgresrepo.NewBindingRepository(pool)

	identity := supabase.NewClient(cfg.Supabase, log)
	lineClient := line.NewClient(cfg.Line, log)

	codec := security.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)

	authService := usecase.NewAuthService(usecase.AuthConfig{
		SessionTTL:    cfg.Session.TTL,
		UserInfoTTL:   cfg.Session.UserInfoTTL,
		TouchThrottle: cfg.Session.TouchThrottle,
		MaxSessions:   cfg.Session.MaxPerUser,
	}, identity, sessionStore, profileRepo, cacheStore, codec, eventPublisher, log)

	permissionService := usecase.NewPermissionService(profileRepo, cacheStore, cfg.Session.PermissionTTL, log)
	registrationService := usecase.NewRegistrationService(identity, profileRepo, eventPublisher, log)
	bindingService := usecase.NewBindingService(bindingRepo, eventPublisher, log)
	oauthService := usecase.NewOAuthService(
		lineClient, stateStore, bindingService, identity, profileRepo,
		authService, cfg.OAuth.StateTTL, log,
	)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Provider:    identity,
		Services: routes.ServiceSet{
			Auth:         authService,
			Registration: registrationService,
			Permissions:  permissionService,
			OAuth:        oauthService,
			Bindings:     bindingService,
		},
	})

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		tracing: tracing,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			_ = a.tracing.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
		close(serverErrCh)
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
