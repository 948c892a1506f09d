package config

import (
	"strings"
	"time"
)

// RateLimitConfig drives one token bucket limiter. The API runs two: a
// strict one on /auth and a looser one on everything else.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// Bucket defaults: requests allowed per window.
const (
	AuthRequestsPerWindow     = 100
	StandardRequestsPerWindow = 200
	RateLimitWindow           = 15 * time.Minute
)

// LoadRateLimitConfig reads RATE_LIMIT_<SCOPE>_* variables (falling back to
// the shared RATE_LIMIT_ENABLED / RATE_LIMIT_DEBUG switches). The default
// bucket holds requests tokens and refills one token every window/requests,
// which allows a sustained rate of requests per window.
func LoadRateLimitConfig(scope string, requests int, window time.Duration) RateLimitConfig {
	p := "RATE_LIMIT_" + strings.ToUpper(scope) + "_"
	if requests < 1 {
		requests = 1
	}
	def := RateLimitConfig{
		Enabled:        envBool(p+"ENABLED", envBool("RATE_LIMIT_ENABLED", true)),
		Capacity:       envInt(p+"CAPACITY", requests),
		RefillTokens:   envInt(p+"REFILL_TOKENS", 1),
		RefillInterval: envDur(p+"REFILL_INTERVAL", window/time.Duration(requests)),
		TTL:            envDur(p+"TTL", window),
		KeyStrategy:    envStr(p+"KEY_STRATEGY", "ip"),
		Prefix:         envStr(p+"PREFIX", "rl:"+strings.ToLower(scope)),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
