package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "scydb")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "scydb")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("BCRYPT_COST", "10")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 1000, cfg.QueryMaxLimit)
	assert.Equal(t, 90*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.CookieTTL())
	assert.False(t, cfg.RequireEmailVerification)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "true")
	t.Setenv("FRONTEND_URL", "https://scydb.example/")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("QUERY_MAX_LIMIT", "0")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.RequireEmailVerification)
	assert.Equal(t, "https://scydb.example", cfg.FrontendURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 0, cfg.QueryMaxLimit)
}

func TestLoadRateLimitConfig(t *testing.T) {
	auth := LoadRateLimitConfig("auth", AuthRequestsPerWindow, RateLimitWindow)
	assert.Equal(t, 100, auth.Capacity)
	assert.Equal(t, 9*time.Second, auth.RefillInterval)
	assert.Equal(t, "rl:auth", auth.Prefix)
	assert.Equal(t, RateLimitWindow, auth.TTL)

	std := LoadRateLimitConfig("standard", StandardRequestsPerWindow, RateLimitWindow)
	assert.Equal(t, 200, std.Capacity)
	assert.Equal(t, 4500*time.Millisecond, std.RefillInterval)

	t.Setenv("RATE_LIMIT_AUTH_CAPACITY", "5")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	auth = LoadRateLimitConfig("auth", AuthRequestsPerWindow, RateLimitWindow)
	assert.Equal(t, 5, auth.Capacity)
	assert.False(t, auth.Enabled)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cc := LoadCacheConfig()
	assert.True(t, cc.Methods["GET"])
	assert.True(t, cc.Methods["HEAD"])
	assert.Equal(t, 30*time.Second, cc.TTL)
}
