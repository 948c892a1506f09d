package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. It is built once at startup and never mutated.
type Config struct {
	Env  string // application environment (development, production)
	Port string // HTTP port to listen on

	DBUser        string
	DBPass        string // optional
	DBHost        string
	DBPort        string
	DBName        string
	DBAutoMigrate bool // run embedded migrations at startup

	JWTSecret        string
	JWTTTL           time.Duration // session token lifetime
	JWTCookieTTLDays int           // lifetime of the jwt cookie
	BcryptCost       int

	RequireEmailVerification bool   // strict mode: unverified users get no session
	FrontendURL              string // base URL used to build links in emails

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	AMQPURL string // empty disables activity events

	QueryMaxLimit int // cap on ?limit=, 0 = query.HardMaxLimit only
	LogLevel      string
	CORSOrigins   []string
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must(); missing values cause
// the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  envStr("APP_ENV", "development"),
		Port: envStr("APP_PORT", "8080"),

		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        must("DB_PORT"),
		DBName:        must("DB_NAME"),
		DBAutoMigrate: envBool("DB_AUTO_MIGRATE", true),

		JWTSecret:        must("JWT_SECRET"),
		JWTTTL:           time.Duration(envInt("JWT_TTL_MIN", 90*24*60)) * time.Minute,
		JWTCookieTTLDays: envInt("JWT_COOKIE_TTL_DAYS", 90),
		BcryptCost:       mustInt("BCRYPT_COST"),

		RequireEmailVerification: envBool("REQUIRE_EMAIL_VERIFICATION", false),
		FrontendURL:              strings.TrimRight(envStr("FRONTEND_URL", "http://localhost:3000"), "/"),

		SMTPHost:     envStr("SMTP_HOST", "localhost"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     envStr("SMTP_FROM", "Scydb <no-reply@scydb.local>"),

		AMQPURL: os.Getenv("AMQP_URL"),

		QueryMaxLimit: envInt("QUERY_MAX_LIMIT", 1000),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		CORSOrigins:   splitList(envStr("CORS_ORIGINS", "http://localhost:3000")),
	}
}

// IsProduction reports whether the service runs with production settings
// (JSON logs, secure cookies, hidden internal errors).
func (c Config) IsProduction() bool { return c.Env == "production" }

// CookieTTL is the lifetime of the session cookie.
func (c Config) CookieTTL() time.Duration {
	return time.Duration(c.JWTCookieTTLDays) * 24 * time.Hour
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
