package router

import (
	"log/slog"
	"time"

	"taskify/backend/internal/handlers"
	"taskify/backend/internal/logging"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/tokens"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Options struct {
	AllowedOrigins []string
	Tokens         *tokens.Manager
	Monitor        *monitoring.Monitor
	// RateLimiter throttles the public auth endpoints when set.
	RateLimiter *middleware.IPRateLimiter
	Logger      *slog.Logger
}

func NewRouter(authHandler *handlers.AuthHandler, taskHandler *handlers.TaskHandler, opts Options) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RecoveryWithLog())
	if opts.Logger != nil {
		r.Use(logging.RequestLogger(opts.Logger))
	}
	if opts.Monitor != nil {
		r.Use(opts.Monitor.Middleware())
	}
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	if opts.Monitor != nil {
		r.GET("/healthz", opts.Monitor.HealthHandler())
		r.GET("/readyz", opts.Monitor.ReadinessHandler())
		r.GET("/livez", opts.Monitor.LivenessHandler())
		r.GET("/metrics", opts.Monitor.MetricsHandler())
	}

	auth := middleware.Auth(opts.Tokens)

	user := r.Group("/user")
	{
		public := user.Group("")
		if opts.RateLimiter != nil {
			public.Use(middleware.RateLimit(opts.RateLimiter))
		}
		public.POST("/create", authHandler.Register)
		public.POST("/login", authHandler.Login)
		public.POST("/token", authHandler.Login)
		public.POST("/token/refresh", authHandler.Refresh)
		public.POST("/logout", authHandler.Logout)

		user.GET("/me", auth, authHandler.Me)
		user.PATCH("/me", auth, authHandler.UpdateMe)
	}

	tasks := r.Group("/tasks", auth)
	{
		tasks.GET("/", taskHandler.ListTasks)
		tasks.POST("/", taskHandler.CreateTask)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.PUT("/:id", taskHandler.UpdateTask)
		tasks.PATCH("/:id", taskHandler.UpdateTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
