package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, a .env file, or YAML
// config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for the product cache; empty disables caching" flag:"redis-url"`
	Auth        AuthConfig
	Checkout    CheckoutConfig
	Cache       CacheConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls token issuance and password hashing.
type AuthConfig struct {
	AccessSecret  string        `usage:"HMAC secret for access tokens" flag:"access-secret"`
	RefreshSecret string        `usage:"HMAC secret for refresh tokens" flag:"refresh-secret"`
	AccessTTL     time.Duration `default:"15m" usage:"Access token lifetime"`
	RefreshTTL    time.Duration `default:"168h" usage:"Refresh token lifetime"`
	Issuer        string        `default:"storefront" usage:"Token issuer claim"`
	BcryptCost    int           `default:"10" usage:"bcrypt cost for password hashes"`
}

// CheckoutConfig tunes order placement.
type CheckoutConfig struct {
	CouponPolicy       string `default:"lenient" usage:"Coupon policy: lenient or strict"`
	ClampNegativeTotal bool   `default:"true" usage:"Floor order totals at zero"`
}

type CacheConfig struct {
	TTL time.Duration `default:"5m" usage:"Product cache entry lifetime"`
}

// KafkaConfig selects the order event sink. Without brokers events are
// logged instead.
type KafkaConfig struct {
	Brokers string `default:"" usage:"Comma-separated Kafka brokers"`
	Topic   string `default:"storefront.orders" usage:"Order events topic"`
}

type OutboxConfig struct {
	Interval  time.Duration `default:"1s" usage:"Outbox relay poll interval"`
	BatchSize int           `default:"100" usage:"Outbox messages per flush"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a .env file when present, then configuration from
// environment variables and YAML config files, and applies platform
// defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	case c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "":
		return errors.New("token secrets are required: set STOREFRONT_AUTH_ACCESS_SECRET and STOREFRONT_AUTH_REFRESH_SECRET")
	case c.Auth.AccessSecret == c.Auth.RefreshSecret:
		return errors.New("access and refresh token secrets must differ")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (DATABASE_URL, REDIS_URL, PORT) onto the prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
