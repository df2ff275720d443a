package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SAR_WARRANTY_MONTHS", "")
	t.Setenv("BODY_LIMIT_BYTES", "")
	t.Setenv("BODY_LIMIT_MB", "")
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "")

	cfg := Load()

	assert.Equal(t, 3, cfg.SARWarrantyMonths)
	assert.Equal(t, 4*1024*1024, cfg.BodyLimitBytes)
	assert.Equal(t, 30*time.Second, cfg.DashboardCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SAR_WARRANTY_MONTHS", "6")
	t.Setenv("BODY_LIMIT_BYTES", "1024")
	t.Setenv("TRACKING_RATE_LIMIT_PER_MINUTE", "abc")

	cfg := Load()

	assert.Equal(t, 6, cfg.SARWarrantyMonths)
	assert.Equal(t, 1024, cfg.BodyLimitBytes)
	assert.Equal(t, 10, cfg.TrackingRateLimit, "invalid values fall back to the default")
}

func TestLoadJWTSecretFallback(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("JWT_SECRET", "legacy")
	assert.Equal(t, "legacy", Load().JWTSecret)

	t.Setenv("JWT_SECRET_KEY", "primary")
	cfg := Load()
	assert.Equal(t, "primary", cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
}
