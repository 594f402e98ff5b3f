package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	MigrateOnStart     bool

	Obs Observability

	CartViewCacheTTL     time.Duration
	CartMergeLockTTL     time.Duration
	CartMergeLockWait    time.Duration
	LockRetryBackoff     time.Duration
	CartRateLimit        string
	CartRateLimitMode    string
	IdempotencyTTL       time.Duration
	VoucherPerUserLimit  int
	DiscountAllocation   string
	ZeroSubtotalTaxRate  decimal.Decimal
	ShutdownGracePeriod  time.Duration
	DatabaseMaxConns     int32
	DatabaseTraceQueries bool
	MaxBodyBytes         int64
	SecurityHeaders      bool
	EnableHSTS           bool
}

// Observability groups logging, metrics and tracing settings.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	HTTPBuckets      string
	EnablePrometheus bool
	EnableTracing    bool
	OTLPEndpoint     string
	SamplingRatio    float64
	ServiceName      string
	EnablePprof      bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	zeroRate, err := decimal.NewFromString(valueOrDefault(k.String("PRICING_ZERO_SUBTOTAL_RATE"), "0"))
	if err != nil {
		return nil, fmt.Errorf("PRICING_ZERO_SUBTOTAL_RATE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(valueOrDefault(k.String("MIGRATE_ON_START"), "true")),
		Obs: Observability{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_cart"),
			HTTPBuckets:      k.String("OBS_HTTP_BUCKETS_MS"),
			EnablePrometheus: parseBool(valueOrDefault(k.String("OBS_ENABLE_PROMETHEUS"), "true")),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:      valueOrDefault(k.String("OBS_SERVICE_NAME"), "toko-cart"),
			EnablePprof:      parseBool(k.String("OBS_ENABLE_PPROF")),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
		CartViewCacheTTL:     parseDuration(k.String("CART_VIEW_CACHE_TTL"), "5m"),
		CartMergeLockTTL:     parseDuration(k.String("CART_MERGE_LOCK_TTL"), "10s"),
		CartMergeLockWait:    parseDuration(k.String("CART_MERGE_LOCK_WAIT"), "3s"),
		LockRetryBackoff:     parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		CartRateLimit:        valueOrDefault(k.String("CART_RATE_LIMIT"), "120-M"),
		CartRateLimitMode:    valueOrDefault(k.String("CART_RATE_LIMIT_STRATEGY"), "fixed"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		VoucherPerUserLimit:  parseInt(k.String("VOUCHER_PER_USER_LIMIT"), 0),
		DiscountAllocation:   strings.ToLower(valueOrDefault(k.String("PRICING_DISCOUNT_ALLOCATION"), "blended")),
		ZeroSubtotalTaxRate:  zeroRate,
		ShutdownGracePeriod:  parseDuration(k.String("SHUTDOWN_GRACE_PERIOD"), "15s"),
		DatabaseMaxConns:     int32(parseInt(k.String("DATABASE_MAX_CONNS"), 10)),
		DatabaseTraceQueries: parseBool(valueOrDefault(k.String("DATABASE_TRACE_QUERIES"), "true")),
		MaxBodyBytes:         int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 64<<10)),
		SecurityHeaders:      parseBool(valueOrDefault(k.String("SECURITY_HEADERS_ENABLED"), "true")),
		EnableHSTS:           parseBool(k.String("SECURITY_HSTS_ENABLED")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.DiscountAllocation {
	case "blended", "prorata", "pro-rata", "pro_rata":
	default:
		return nil, fmt.Errorf("PRICING_DISCOUNT_ALLOCATION: unknown strategy %q", cfg.DiscountAllocation)
	}
	if cfg.ZeroSubtotalTaxRate.IsNegative() {
		return nil, errors.New("PRICING_ZERO_SUBTOTAL_RATE must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "prod", "production":
		return true
	}
	return false
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
