package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/handlers"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/router"
	"taskify/backend/internal/services"
	"taskify/backend/internal/tokens"
	"taskify/backend/internal/worker"

	"github.com/gin-gonic/gin"
)

// App holds every long-lived component of the server process.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool       *database.DatabasePool
	redis      *cache.RedisCache
	authStore  cache.Cache
	blCache    *cache.MultiLevelCache
	blacklist  *services.TokenBlacklist
	limiter    *middleware.IPRateLimiter
	worker     *worker.Worker
	queue      *worker.JobQueue
	monitor    *monitoring.Monitor
	engine     *gin.Engine
	httpServer *http.Server
}

func openDatabase(cfg *config.Config) (*database.DatabasePool, error) {
	if cfg.Database.Driver == database.DriverSQLite {
		return database.OpenSQLite(cfg.GetDatabaseDSN())
	}
	pool, err := database.NewDatabasePool(database.PoolConfigFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// connectRedis returns nil when redis is disabled or unreachable; the server
// then runs on in-memory caches without the job worker.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.RedisCache {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, using in-memory caches")
		return nil
	}

	rc := cache.NewRedisCache(&cache.CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := rc.Health(pingCtx); err != nil {
		logger.Warn("redis unavailable, running without it", "address", cfg.GetRedisAddr(), "error", err)
		rc.Close()
		return nil
	}

	logger.Info("redis connection successful", "address", cfg.GetRedisAddr())
	return rc
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rc := connectRedis(ctx, cfg, logger)
	app, err := newAppWithRedis(cfg, logger, pool, rc)
	if err != nil {
		if rc != nil {
			rc.Close()
		}
		pool.Close()
		return nil, err
	}
	return app, nil
}

func newAppWithRedis(cfg *config.Config, logger *slog.Logger, pool *database.DatabasePool, rc *cache.RedisCache) (*App, error) {
	app := &App{cfg: cfg, logger: logger, pool: pool, redis: rc, monitor: monitoring.NewMonitor()}

	var blacklistL2 cache.Cache
	if rc != nil {
		app.authStore = rc
		blacklistL2 = rc
	} else {
		app.authStore = cache.NewMemoryCache()
	}
	blacklistCache := cache.NewMultiLevelCache(blacklistL2)
	app.blCache = blacklistCache

	secret := []byte(cfg.Auth.JWTSecret)
	tm, err := tokens.NewManager(tokens.Config{
		Secret:     secret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := services.NewBcryptHasher(cfg.Auth.BCryptCost)
	if err != nil {
		return nil, err
	}

	app.blacklist = services.NewTokenBlacklist(repositories.NewBlacklistRepository(pool.DB), blacklistCache, logger)
	authSvc := services.NewAuthService(
		repositories.NewUserRepository(pool.DB),
		hasher,
		services.NewPasswordPolicy(cfg.Auth.PasswordMinLength),
		tm,
		services.NewAuthCache(app.authStore, secret, cfg.Auth.AuthCacheTTL, logger),
		app.blacklist,
		logger,
	)
	taskSvc := services.NewTaskService(repositories.NewTaskRepository(pool.DB), logger)

	app.monitor.RegisterHealthCheck("database", func(context.Context) error { return pool.Health() })
	app.monitor.RegisterStats("database", pool.Stats)
	app.monitor.RegisterStats("auth_cache", app.authStore.Stats)
	app.monitor.RegisterStats("blacklist_cache", blacklistCache.Stats)

	if rc != nil {
		app.monitor.RegisterHealthCheck("redis", rc.Health)
		app.queue = worker.NewJobQueue(rc.Client())
		app.worker = worker.NewWorker(worker.WorkerConfig{
			RedisClient:  rc.Client(),
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			Queues:       cfg.Worker.Queues,
			Logger:       logger,
		})
		app.worker.RegisterHandler(worker.JobTypeBlacklistPurge, worker.BlacklistPurgeHandler(app.blacklist, logger))
		app.monitor.RegisterStats("queues", func() map[string]interface{} {
			return app.queue.Stats(append(cfg.Worker.Queues, worker.DeadQueue)...)
		})
	}

	if cfg.RateLimit.Enabled {
		app.limiter = middleware.NewIPRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin: cfg.RateLimit.RequestsPerMin,
			BurstSize:      cfg.RateLimit.BurstSize,
		})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	app.engine = router.NewRouter(handlers.NewAuthHandler(authSvc, logger), handlers.NewTaskHandler(taskSvc, logger), router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Tokens:         tm,
		Monitor:        app.monitor,
		RateLimiter:    app.limiter,
		Logger:         logger,
	})

	app.httpServer = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      app.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// runBackground starts the worker and periodic maintenance. Everything stops
// when ctx is cancelled.
func (a *App) runBackground(ctx context.Context) {
	if a.limiter != nil {
		go a.limiter.Run(ctx, a.cfg.RateLimit.CleanupInterval)
	}

	if a.worker != nil {
		a.worker.Start(a.cfg.Worker.Concurrency)
		go a.queue.Schedule(ctx, a.cfg.Worker.BlacklistPurgeEvery, worker.JobTypeBlacklistPurge, a.logger)
		return
	}

	// Without redis there is no queue, so purge inline on the same schedule.
	go func() {
		interval := a.cfg.Worker.BlacklistPurgeEvery
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := a.blacklist.PurgeExpired(ctx); err != nil {
					a.logger.Warn("blacklist purge failed", "error", err)
				} else {
					a.logger.Info("purged expired blacklist entries", "deleted", n)
				}
			}
		}
	}()
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	a.runBackground(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "address", a.httpServer.Addr, "environment", a.cfg.Server.Environment)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.worker != nil {
		a.worker.Stop()
	}
	// the blacklist cache owns the shared redis client, when there is one
	if err := a.blCache.Close(); err != nil {
		a.logger.Error("failed to close redis client", "error", err)
	}
	if a.redis == nil {
		a.authStore.Close()
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
}
