package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/d56845684/edu-auth-service/internal/core/domain"
	"github.com/d56845684/edu-auth-service/internal/infra/config"
	"github.com/d56845684/edu-auth-service/internal/infra/telemetry"
	"github.com/d56845684/edu-auth-service/internal/transport/http/cookie"
	"github.com/d56845684/edu-auth-service/internal/transport/http/handlers"
	"github.com/d56845684/edu-auth-service/internal/transport/http/middleware"
	"github.com/d56845684/edu-auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Permissions  *usecase.PermissionService
	OAuth        *usecase.OAuthService
	Bindings     *usecase.BindingService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *telemetry.Metrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
	Provider    ProviderChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderChecker exposes readiness behaviour for the identity provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS([]string{deps.Config.Frontend.BaseURL}))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Auth)

	healthOptions := make([]handlers.HealthOption, 0, 3)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	if deps.Provider != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("provider", deps.Provider.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	if deps.Config.Telemetry.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	cookies := cookie.NewWriter(deps.Config.Cookie)
	accessTTL := int(deps.Config.JWT.AccessTokenTTL.Seconds())
	refreshTTL := int(deps.Config.JWT.RefreshTokenTTL.Seconds())
	sessionTTL := int(deps.Config.Session.TTL.Seconds())

	authHandler := handlers.NewAuthHandler(
		deps.Services.Auth, deps.Services.Registration, cookies,
		accessTTL, refreshTTL, sessionTTL,
	)
	oauthHandler := handlers.NewOAuthHandler(
		deps.Services.OAuth, cookies, deps.Config.Frontend,
		accessTTL, refreshTTL, sessionTTL,
	)
	notificationHandler := handlers.NewNotificationHandler(deps.Services.Bindings)
	permissionHandler := handlers.NewPermissionHandler(deps.Services.Permissions)

	limit := func(name string, max int) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return deps.RateLimiter.Limit(middleware.RateLimitRule{
			Name:   name,
			Limit:  max,
			Window: deps.Config.RateLimit.WindowDuration,
		})
	}

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/login", limit("login", deps.Config.RateLimit.LoginMaxAttempts), authHandler.Login)
		auth.POST("/register", limit("register", deps.Config.RateLimit.RegisterMaxAttempts), authHandler.Register)
		auth.POST("/refresh", limit("refresh", deps.Config.RateLimit.RefreshMaxAttempts), authHandler.Refresh)
		auth.POST("/password-reset", limit("password_reset", deps.Config.RateLimit.PasswordResetMaxAttempts), authHandler.RequestPasswordReset)
		auth.POST("/logout", authMiddleware, authHandler.Logout)
		auth.GET("/me", authMiddleware, authHandler.Me)
		auth.GET("/sessions", authMiddleware, authHandler.Sessions)
		auth.DELETE("/sessions/:session_id", authMiddleware, authHandler.RevokeSession)
	}

	oauth := api.Group("/oauth/line")
	{
		oauth.GET("/login/:channel", oauthHandler.BeginLogin)
		oauth.GET("/bind/:channel", authMiddleware, oauthHandler.BeginBind)
		oauth.GET("/callback", oauthHandler.Callback)
	}

	bindings := api.Group("/bindings", authMiddleware)
	{
		bindings.GET("", notificationHandler.ListBindings)
		bindings.GET("/:channel", notificationHandler.GetBinding)
		bindings.DELETE("/:channel", notificationHandler.Unbind)
		bindings.PUT("/:channel/preferences", notificationHandler.UpdatePreferences)
	}

	permissions := api.Group("/permissions", authMiddleware)
	{
		permissions.GET("/me", permissionHandler.MyPermission)
		permissions.PUT("/:user_id/subtype",
			middleware.RequireRole(domain.RoleEmployee, domain.RoleAdmin),
			permissionHandler.SetSubtype,
		)
	}

	// Internal surface for the notification dispatcher.
	internal := api.Group("/internal")
	{
		internal.GET("/notifications/:channel/:user_id/opt-in", notificationHandler.OptInStatus)
	}

	return r
}
