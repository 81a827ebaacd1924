package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultAddr = "0.0.0.0:8080"

// maxTolerance is one minor currency unit.
var maxTolerance = decimal.New(1, -2)

// Config holds the complete application configuration, loadable from
// environment variables (ARTISAN_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Gateway   GatewayConfig
	Auth      AuthConfig
	Checkout  CheckoutConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the order store.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Order store driver: postgres or sqlite"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ARTISAN_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SQLitePath  string `default:"artisan.db" usage:"SQLite database file" flag:"sqlite-path"`
}

// GatewayConfig holds the payment gateway credentials. They never leave the
// server.
type GatewayConfig struct {
	BaseURL   string        `default:"https://api.razorpay.com/v1" usage:"Gateway API base URL"`
	KeyID     string        `usage:"Gateway key id (RAZORPAY_KEY_ID)"`
	KeySecret string        `usage:"Gateway key secret, also the signature key (RAZORPAY_KEY_SECRET)"`
	Currency  string        `default:"INR" usage:"Gateway order currency"`
	Timeout   time.Duration `default:"30s" usage:"Gateway request timeout"`
}

// AuthConfig controls session token validation.
type AuthConfig struct {
	JWTSecret string        `usage:"HMAC key for session tokens" flag:"jwt-secret"`
	Issuer    string        `default:"artisan" usage:"Expected session token issuer"`
	TokenTTL  time.Duration `default:"24h" usage:"Lifetime of issued session tokens"`
}

// CheckoutConfig holds the pricing rules shared with the client. Amounts are
// decimal strings.
type CheckoutConfig struct {
	ShippingFee string `default:"50.00" usage:"Flat shipping fee added to every order"`
	Tolerance   string `default:"0.01" usage:"Allowed difference between computed and claimed totals"`
}

// Decimals parses the shipping fee and tolerance.
func (c CheckoutConfig) Decimals() (fee, tolerance decimal.Decimal, err error) {
	if fee, err = decimal.NewFromString(c.ShippingFee); err != nil {
		return fee, tolerance, errors.Wrapf(err, "parse shipping fee %q", c.ShippingFee)
	}
	if tolerance, err = decimal.NewFromString(c.Tolerance); err != nil {
		return fee, tolerance, errors.Wrapf(err, "parse tolerance %q", c.Tolerance)
	}
	return fee, tolerance, nil
}

// RedisConfig enables the gateway order idempotency cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr           string        `usage:"Redis address (host:port)"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database number"`
	IdempotencyTTL time.Duration `default:"15m" usage:"How long a gateway order is reused for a repeated idempotency key" flag:"idempotency-ttl"`
}

// KafkaConfig enables order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"artisan.orders" usage:"Order events topic"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// PaymentMax is the separate budget of each payment endpoint, which calls
	// the gateway or writes orders.
	PaymentMax int `default:"20" usage:"Max payment endpoint requests per window" flag:"payment-max"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ARTISAN",
		Files:     []string{"config.yaml", "/etc/artisan/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set ARTISAN_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
		return errors.New("gateway credentials are required: set RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set ARTISAN_AUTH_JWT_SECRET")
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.PaymentMax <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max, payment max and window must be positive")
	}

	fee, tolerance, err := c.Checkout.Decimals()
	if err != nil {
		return err
	}
	if fee.IsNegative() {
		return errors.Errorf("shipping fee must not be negative, got %s", fee)
	}
	if !tolerance.IsPositive() || tolerance.GreaterThan(maxTolerance) {
		return errors.Errorf("tolerance must be in (0, %s], got %s", maxTolerance, tolerance)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ARTISAN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	setFromEnv(&c.Storage.DatabaseURL, "DATABASE_URL")
	setFromEnv(&c.Gateway.KeyID, "RAZORPAY_KEY_ID")
	setFromEnv(&c.Gateway.KeySecret, "RAZORPAY_KEY_SECRET")
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func setFromEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
