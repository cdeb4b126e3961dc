package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/atelier/internal/domain/settings"
)

// Config holds the complete application configuration, loadable from
// environment variables (ATELIER_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (ATELIER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL  string        `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Currency      string        `default:"TRY" usage:"Currency of order totals"`
	NotifyTimeout time.Duration `default:"10s" usage:"Deadline for post-commit order notifications" flag:"notify-timeout"`
	Auth          AuthConfig
	Shipping      ShippingConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Mail          MailConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `usage:"HMAC secret for HS256 bearer tokens (ATELIER_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	Issuer    string `default:"" usage:"Expected token issuer, empty to skip the check"`
}

// ShippingConfig holds the shipping policy used when site_settings has no
// value for a key.
type ShippingConfig struct {
	FreeThreshold string `default:"500" usage:"Subtotal from which shipping is free"`
	BaseRate      string `default:"50"  usage:"Shipping cost below the free threshold"`
}

// Policy parses the configured fallbacks.
func (c ShippingConfig) Policy() (settings.Shipping, error) {
	threshold, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return settings.Shipping{}, errors.Wrap(err, "shipping free threshold")
	}
	rate, err := decimal.NewFromString(c.BaseRate)
	if err != nil {
		return settings.Shipping{}, errors.Wrap(err, "shipping base rate")
	}
	if threshold.IsNegative() || rate.IsNegative() {
		return settings.Shipping{}, errors.New("shipping amounts must not be negative")
	}
	return settings.Shipping{FreeThreshold: threshold, BaseRate: rate}, nil
}

// RedisConfig enables the site settings cache when Addr is set.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address, empty disables the cache"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	TTL      time.Duration `default:"1m" usage:"Site settings cache TTL"`
}

// KafkaConfig enables order.placed events when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers, empty disables events"`
	Topic   string   `default:"orders" usage:"Topic for order events"`
}

// MailConfig enables order confirmation emails when Host is set.
type MailConfig struct {
	Host     string `default:"" usage:"SMTP host, empty disables confirmation emails"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `default:"" usage:"SMTP username"`
	Password string `default:"" usage:"SMTP password"`
	From     string `default:"orders@atelier.local" usage:"Sender address"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	TrustProxy bool          `default:"false" usage:"Key clients by X-Forwarded-For" flag:"trust-proxy"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

func (c CORSConfig) wildcard() bool {
	if len(c.Origins) == 0 {
		return true
	}
	for _, o := range c.Origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ATELIER",
		Files:     []string{"config.yaml", "/etc/atelier/config.yaml"},
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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ATELIER_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set ATELIER_AUTH_JWT_SECRET")
	}
	if _, err := c.Shipping.Policy(); err != nil {
		return errors.Wrap(err, "invalid shipping config")
	}
	if c.CORS.AllowCredentials && c.CORS.wildcard() {
		return errors.New("CORS credentials need explicit origins, not \"*\"")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ATELIER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
