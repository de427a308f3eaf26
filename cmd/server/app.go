package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/team-pulse/internal/api"
	"github.com/ZanzyTHEbar/team-pulse/internal/auth"
	"github.com/ZanzyTHEbar/team-pulse/internal/cache"
	"github.com/ZanzyTHEbar/team-pulse/internal/config"
	"github.com/ZanzyTHEbar/team-pulse/internal/database"
	_ "github.com/ZanzyTHEbar/team-pulse/internal/docs"
	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/metrics"
	"github.com/ZanzyTHEbar/team-pulse/internal/middleware"
	"github.com/ZanzyTHEbar/team-pulse/internal/monitoring"
	"github.com/ZanzyTHEbar/team-pulse/internal/pgstore"
	"github.com/ZanzyTHEbar/team-pulse/internal/ratelimit"
	"github.com/ZanzyTHEbar/team-pulse/internal/security"
)

const cacheNamespace = "team-pulse:"

// application owns every long-lived dependency of the server process
type application struct {
	cfg *config.Config

	store    api.Store
	auth     *auth.Service
	metrics  *metrics.Service
	security *security.SecurityMiddleware
	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	monitor  *monitoring.Metrics
	logger   *monitoring.Logger

	compression *middleware.CompressionMiddleware

	closers []namedCloser
}

func newApplication(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		monitor: monitoring.NewMetrics(),
		logger:  logger,

		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}

	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.onClose(cfg.DatabaseDriver+" store", closer)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if _, err := auth.SeedAdmin(ctx, store, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to seed admin: %w", err)
		}
		slog.Info("Admin account ready", "username", cfg.AdminUsername)
	}

	app.redis, err = ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// a failed ping still yields a disabled client
		slog.Warn("Redis unavailable, using in-memory backends", "addr", cfg.RedisAddr, "error", err)
	}
	app.onClose("redis client", app.redis)

	var viewCache cache.Cache
	if app.redis.IsEnabled() {
		viewCache = cache.NewRedisCache(app.redis.GetClient(), cfg.CacheTTL, cacheNamespace)
	} else {
		mem := cache.NewMemoryCache(cfg.CacheTTL)
		app.onClose("view cache", mem)
		viewCache = mem
	}
	app.metrics = metrics.NewServiceWithCache(store, metrics.NewViewCache(viewCache, logger))

	app.limiter = ratelimit.NewRateLimiter(app.redis, ratelimit.Config{
		IPLimitPerMin:    cfg.RateLimitPerMin,
		LoginLimitPerMin: cfg.LoginRateLimitPerMin,
	}, app.monitor)
	app.onClose("rate limiter", errors.CloserFunc(func() error {
		app.limiter.Close()
		return nil
	}))

	app.auth = auth.NewService(store, auth.Options{
		Secret:         cfg.JWTSecret,
		TokenTTL:       cfg.TokenTTL,
		ViewerPassword: cfg.ViewerPassword,
	})
	if cfg.ViewerPassword == "" {
		slog.Warn("VIEWER_PASSWORD is not set, viewer access is disabled")
	}

	secCfg := security.DefaultSecurityConfig()
	secCfg.RequestTimeout = cfg.RequestTimeout
	secCfg.MaxBodyBytes = cfg.MaxBodyBytes
	secCfg.EnableHSTS = cfg.IsRelease()
	app.security = security.NewSecurityMiddleware(secCfg)

	logger.SystemLogger("startup", fmt.Sprintf("driver=%s cache=%s limiter=%s",
		cfg.DatabaseDriver, viewCache.Backend(), app.limiter.Backend()))

	return app, nil
}

// openStore connects the configured backend and returns its closer
func openStore(cfg *config.Config) (api.Store, io.Closer, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		store, err := pgstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return store, store, nil
	default:
		db, err := database.NewDB(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return database.NewRepository(db), db, nil
	}
}

func (app *application) routes() (*gin.Engine, error) {
	handler, err := api.NewHandler(api.Deps{
		Store:            app.store,
		Auth:             app.auth,
		Metrics:          app.metrics,
		Security:         app.security,
		Limiter:          app.limiter,
		Monitor:          app.monitor,
		Logger:           app.logger,
		LoginLimitPerMin: app.cfg.LoginRateLimitPerMin,
		Version:          app.cfg.Version,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(monitoring.RequestID())
	r.Use(monitoring.MonitoringMiddleware(app.monitor, app.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(app.compression.Handler())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     app.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", monitoring.RequestIDHeader},
		ExposeHeaders:    []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(app.security.SecurityHeaders)
	r.Use(app.security.RequestTimeout)
	r.Use(app.security.ValidateContentType)
	r.Use(app.security.LimitBody)
	r.Use(app.limiter.IPRateLimitMiddleware())

	handler.Register(r)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", app.auth.RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"requests":    app.monitor.GetStats(),
			"rateLimits":  app.monitor.GetRateLimitStats(),
			"cache":       app.metrics.CacheStats(),
			"redis":       app.redis.GetPoolStats(),
			"compression": app.compression.GetStats(),
			"p95_latency": app.monitor.Percentile(95).String(),
		})
	})

	return r, nil
}

type namedCloser struct {
	name   string
	closer io.Closer
}

func (app *application) onClose(name string, c io.Closer) {
	app.closers = append(app.closers, namedCloser{name: name, closer: c})
}

// Close releases resources in reverse order of acquisition
func (app *application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		errors.SafeClose(app.closers[i].closer, app.closers[i].name)
	}
	app.closers = nil
}
