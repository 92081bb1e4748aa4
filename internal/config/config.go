package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Cache backend constants
const (
	CacheModeMemory     = "memory"
	CacheModeRedis      = "redis"
	CacheModeRedisAside = "redis-aside"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string
	IsProduction bool

	// JWT settings
	JWTSecret              string
	AccessTokenExpiration  time.Duration // access token lifetime (default: 15m)
	RefreshTokenExpiration time.Duration // refresh token lifetime (default: 720h = 30 days)
	TokenIssuer            string

	// Session settings
	SessionSecret string
	SessionMaxAge int // seconds

	// Device code settings
	DeviceCodeExpiration time.Duration
	PollingInterval      int // seconds
	DeviceSweepInterval  time.Duration

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Credit settings
	CreditPricePerK     int   // credits charged per 1000 tokens
	SignupBonusCredits  int64 // ledger seed for new accounts
	StreamChunkEstimate int   // estimated tokens per SSE chunk when usage is missing

	// Operator access
	OperatorToken         string // static bearer token for operator tooling
	OperatorBypassCredits bool   // skip the balance pre-check for the operator token

	// Upstream LLM API
	UpstreamBaseURL            string
	UpstreamAPIKey             string
	UpstreamTimeout            time.Duration
	UpstreamStreamIdleTimeout  time.Duration
	UpstreamInsecureSkipVerify bool
	UpstreamMaxRetries         int // retries for buffered calls only
	UpstreamRetryDelay         time.Duration
	UpstreamMaxRetryDelay      time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsToken   string // optional bearer token guarding /metrics

	// Audit logging
	AuditEnabled    bool
	AuditBufferSize int

	// Rate limiting
	RateLimitEnabled         bool
	RateLimitStore           string // "memory" or "redis"
	RateLimitCleanupInterval time.Duration
	DeviceCodeRateLimit      int64 // requests per minute per IP
	TokenRateLimit           int64
	LoginRateLimit           int64
	CompletionsRateLimit     int64

	// Redis (rate limiter store + cache backend)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Cache settings
	CacheMode      string // "memory" or "redis"
	CacheKeyPrefix string
	CacheClientTTL time.Duration

	// Background jobs
	GaugeUpdateInterval     time.Duration // ledger/user gauge refresh period
	RevocationSweepInterval time.Duration // revocation list cleanup period
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Determine database driver and DSN
	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "creditgate.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:             getEnv("SERVER_ADDR", ":8080"),
		BaseURL:                getEnv("BASE_URL", "http://localhost:8080"),
		IsProduction:           getEnv("ENVIRONMENT", "development") == "production",
		JWTSecret:              getEnv("JWT_SECRET", "your-256-bit-secret-change-in-production"),
		AccessTokenExpiration:  getEnvDuration("ACCESS_TOKEN_EXPIRATION", 15*time.Minute),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour), // 30 days
		TokenIssuer:            getEnv("TOKEN_ISSUER", "creditgate"),
		SessionSecret:          getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge:          getEnvInt("SESSION_MAX_AGE", 86400),
		DeviceCodeExpiration:   getEnvDuration("DEVICE_CODE_EXPIRATION", 10*time.Minute),
		PollingInterval:        getEnvInt("DEVICE_POLLING_INTERVAL", 5),
		DeviceSweepInterval:    getEnvDuration("DEVICE_SWEEP_INTERVAL", time.Minute),
		DatabaseDriver:         driver,
		DatabaseDSN:            dsn,

		// Credit settings
		CreditPricePerK:     getEnvInt("CREDIT_PRICE_PER_K", 1),
		SignupBonusCredits:  int64(getEnvInt("SIGNUP_BONUS_CREDITS", 100)),
		StreamChunkEstimate: getEnvInt("STREAM_CHUNK_ESTIMATE", 2),

		// Operator access
		OperatorToken:         getEnv("OPERATOR_TOKEN", ""),
		OperatorBypassCredits: getEnvBool("OPERATOR_BYPASS_CREDITS", false),

		// Upstream LLM API
		UpstreamBaseURL:            getEnv("UPSTREAM_BASE_URL", "https://api.openai.com"),
		UpstreamAPIKey:             getEnv("UPSTREAM_API_KEY", ""),
		UpstreamTimeout:            getEnvDuration("UPSTREAM_TIMEOUT", 60*time.Second),
		UpstreamStreamIdleTimeout:  getEnvDuration("UPSTREAM_STREAM_IDLE_TIMEOUT", 5*time.Minute),
		UpstreamInsecureSkipVerify: getEnvBool("UPSTREAM_INSECURE_SKIP_VERIFY", false),
		UpstreamMaxRetries:         getEnvInt("UPSTREAM_MAX_RETRIES", 3),
		UpstreamRetryDelay:         getEnvDuration("UPSTREAM_RETRY_DELAY", 1*time.Second),
		UpstreamMaxRetryDelay:      getEnvDuration("UPSTREAM_MAX_RETRY_DELAY", 10*time.Second),

		// Metrics
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		// Audit logging
		AuditEnabled:    getEnvBool("AUDIT_ENABLED", true),
		AuditBufferSize: getEnvInt("AUDIT_BUFFER_SIZE", 256),

		// Rate limiting
		RateLimitEnabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", "memory"),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		DeviceCodeRateLimit:      int64(getEnvInt("DEVICE_CODE_RATE_LIMIT", 10)),
		TokenRateLimit:           int64(getEnvInt("TOKEN_RATE_LIMIT", 60)),
		LoginRateLimit:           int64(getEnvInt("LOGIN_RATE_LIMIT", 10)),
		CompletionsRateLimit:     int64(getEnvInt("COMPLETIONS_RATE_LIMIT", 120)),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Cache settings
		CacheMode:      getEnv("CACHE_MODE", CacheModeMemory),
		CacheKeyPrefix: getEnv("CACHE_KEY_PREFIX", "creditgate:"),
		CacheClientTTL: getEnvDuration("CACHE_CLIENT_TTL", 10*time.Second),

		// Background jobs
		GaugeUpdateInterval:     getEnvDuration("GAUGE_UPDATE_INTERVAL", time.Minute),
		RevocationSweepInterval: getEnvDuration("REVOCATION_SWEEP_INTERVAL", 5*time.Minute),
	}
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET must not be empty")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be: sqlite, postgres)", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for driver %s", c.DatabaseDriver)
	}
	if c.CreditPricePerK < 1 {
		return fmt.Errorf("CREDIT_PRICE_PER_K must be at least 1, got %d", c.CreditPricePerK)
	}
	if c.StreamChunkEstimate < 1 {
		return fmt.Errorf("STREAM_CHUNK_ESTIMATE must be at least 1, got %d", c.StreamChunkEstimate)
	}
	if c.PollingInterval < 0 {
		return fmt.Errorf("DEVICE_POLLING_INTERVAL must not be negative, got %d", c.PollingInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
