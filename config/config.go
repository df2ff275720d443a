package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	AllowedOrigins string
	BodyLimitBytes int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RateLimitMax    int
	RateLimitWindow time.Duration

	// Tracking endpoint budget, requests per minute per address.
	TrackingRateLimit int
	TrackingMonths    int

	SARWarrantyMonths int
	DashboardCacheTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	bodyLimit := envInt("BODY_LIMIT_BYTES", 0)
	if bodyLimit <= 0 {
		bodyLimit = envInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	return &Config{
		Port:           envString("PORT", "8080"),
		AllowedOrigins: envString("ALLOWED_ORIGINS", "*"),
		BodyLimitBytes: bodyLimit,

		DBHost:     envString("DB_HOST", "db"),
		DBPort:     envString("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RateLimitMax:    envInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow: time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		TrackingRateLimit: envInt("TRACKING_RATE_LIMIT_PER_MINUTE", 10),
		TrackingMonths:    envInt("TRACKING_TOKEN_MONTHS", 6),

		SARWarrantyMonths: envInt("SAR_WARRANTY_MONTHS", 3),
		DashboardCacheTTL: time.Duration(envInt("DASHBOARD_CACHE_TTL_SECONDS", 30)) * time.Second,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		JWTSecret: envString("JWT_SECRET_KEY", os.Getenv("JWT_SECRET")),
		JWTTTL:    time.Duration(envInt("JWT_TTL_HOURS", 24)) * time.Hour,

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "json"),
	}
}

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
