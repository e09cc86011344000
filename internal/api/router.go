package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/get2knowme/internal/app"
	"github.com/charlesng35/get2knowme/internal/handlers"
	"github.com/charlesng35/get2knowme/internal/middleware"
)

// Dependencies bundles the services the HTTP layer is built from.
type Dependencies struct {
	Config        *app.Config
	Registration  handlers.RegistrationWorkflow
	PasswordReset handlers.PasswordResetWorkflow
	// HealthChecks are pinged by /health, keyed by dependency name.
	HealthChecks map[string]handlers.Pinger
	// RateStore backs the per-client limiter; nil disables limiting.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the public routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Registration == nil {
		return nil, errors.New("registration workflow must be provided")
	}
	if deps.PasswordReset == nil {
		return nil, errors.New("password reset workflow must be provided")
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies(cfg.Server.TrustedProxies)); err != nil {
		return nil, err
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, deps.HealthChecks)
	registerMetricsRoutes(r, cfg)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Requests: cfg.Server.RateLimit.Requests,
		Window:   cfg.Server.RateLimit.Window,
		Store:    deps.RateStore,
	}))

	registerRegistrationRoutes(api, handlers.NewRegistrationHandler(deps.Registration))
	registerPasswordRoutes(api, handlers.NewPasswordHandler(deps.PasswordReset))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerRegistrationRoutes(api *gin.RouterGroup, handler *handlers.RegistrationHandler) {
	registrations := api.Group("/registrations")
	{
		registrations.POST("", handler.Begin)
		registrations.POST("/confirm", handler.Confirm)
		registrations.POST("/cancel", handler.Cancel)
	}

	consent := api.Group("/consent")
	{
		consent.POST("/approve", handler.Approve)
		consent.POST("/decline", handler.Decline)
	}
}

func registerPasswordRoutes(api *gin.RouterGroup, handler *handlers.PasswordHandler) {
	password := api.Group("/password")
	{
		password.POST("/forgot", handler.Forgot)
		password.POST("/reset", handler.Reset)
	}
}

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, checks map[string]handlers.Pinger) {
	if !cfg.Monitoring.Health.Enabled {
		return
	}
	r.GET("/health", handlers.Health(checks))
}

func registerMetricsRoutes(r *gin.Engine, cfg *app.Config) {
	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}

// trustedProxies returns nil, which trusts no proxy, when none are configured.
func trustedProxies(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
