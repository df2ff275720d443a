package main

import (
	"context"
	"time"

	"atelier-backend/config"
	"atelier-backend/controllers"
	"atelier-backend/database"
	"atelier-backend/logger"
	"atelier-backend/middlewares"
	"atelier-backend/routes"
	"atelier-backend/services"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "atelier-backend")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := middlewares.ConfigureJWT(cfg.JWTSecret, cfg.JWTTTL); err != nil {
		log.Fatal("auth configuration", zap.Error(err))
	}

	// ---- Database
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	// ---- Services
	deps := services.NewDeps(db, log)
	deps.SARWarrantyMonths = cfg.SARWarrantyMonths
	deps.TrackingMonths = cfg.TrackingMonths
	controllers.Setup(deps, dashboardCache(cfg, log), cfg.DashboardCacheTTL)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler(log),
		BodyLimit:    cfg.BodyLimitBytes,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: false, // bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, " + middlewares.KioskHeader,
		ExposeHeaders:    "Content-Disposition",
	}))

	routes.Register(app, routes.Options{
		DB:                db,
		Log:               log,
		RateLimitMax:      cfg.RateLimitMax,
		RateLimitWindow:   cfg.RateLimitWindow,
		TrackingRateLimit: cfg.TrackingRateLimit,
	})

	log.Info("API server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("listen", zap.Error(err))
	}
}

// dashboardCache shares tile counts through redis when REDIS_ADDR is set and the
// server answers, else keeps them in process.
func dashboardCache(cfg *config.Config, log *zap.Logger) services.CountCache {
	if cfg.RedisAddr == "" {
		return services.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, using in-process dashboard cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return services.NewMemoryCache()
	}
	log.Info("dashboard cache on redis", zap.String("addr", cfg.RedisAddr))
	return services.NewRedisCache(client, cfg.DashboardCacheTTL, log)
}
