package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:      defaultAddr,
		Storage:   StorageConfig{Driver: DriverPostgres, DatabaseURL: "postgres://localhost/artisan"},
		Gateway:   GatewayConfig{KeyID: "rzp_test", KeySecret: "secret"},
		Auth:      AuthConfig{JWTSecret: "jwt"},
		Checkout:  CheckoutConfig{ShippingFee: "50.00", Tolerance: "0.01"},
		RateLimit: RateLimitConfig{Max: 100, Window: time.Minute, PaymentMax: 20},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "valid"},
		{
			name:   "sqlite",
			modify: func(c *Config) { c.Storage = StorageConfig{Driver: DriverSQLite, SQLitePath: "a.db"} },
		},
		{
			name:   "unknown driver",
			modify: func(c *Config) { c.Storage.Driver = "mysql" },
			errMsg: `unknown storage driver "mysql"`,
		},
		{
			name:   "no database url",
			modify: func(c *Config) { c.Storage.DatabaseURL = "" },
			errMsg: "database URL is required",
		},
		{
			name:   "no sqlite path",
			modify: func(c *Config) { c.Storage = StorageConfig{Driver: DriverSQLite} },
			errMsg: "sqlite path is required",
		},
		{
			name:   "no gateway secret",
			modify: func(c *Config) { c.Gateway.KeySecret = "" },
			errMsg: "gateway credentials are required",
		},
		{
			name:   "no jwt secret",
			modify: func(c *Config) { c.Auth.JWTSecret = "" },
			errMsg: "JWT secret is required",
		},
		{
			name:   "no payment budget",
			modify: func(c *Config) { c.RateLimit.PaymentMax = 0 },
			errMsg: "rate limit",
		},
		{
			name:   "bad fee",
			modify: func(c *Config) { c.Checkout.ShippingFee = "fifty" },
			errMsg: "parse shipping fee",
		},
		{
			name:   "negative fee",
			modify: func(c *Config) { c.Checkout.ShippingFee = "-1" },
			errMsg: "shipping fee must not be negative",
		},
		{
			name:   "zero tolerance",
			modify: func(c *Config) { c.Checkout.Tolerance = "0" },
			errMsg: "tolerance must be in",
		},
		{
			name:   "tolerance above one minor unit",
			modify: func(c *Config) { c.Checkout.Tolerance = "0.5" },
			errMsg: "tolerance must be in",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.modify != nil {
				tt.modify(&cfg)
			}
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCheckoutConfig_Decimals(t *testing.T) {
	fee, tolerance, err := CheckoutConfig{ShippingFee: "50.00", Tolerance: "0.005"}.Decimals()
	require.NoError(t, err)
	assert.Equal(t, "50", fee.String())
	assert.Equal(t, "0.005", tolerance.String())

	_, _, err = CheckoutConfig{ShippingFee: "1", Tolerance: "x"}.Decimals()
	require.ErrorContains(t, err, "parse tolerance")
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_platform")
	t.Setenv("RAZORPAY_KEY_SECRET", "platform-secret")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "rzp_platform", cfg.Gateway.KeyID)
	assert.Equal(t, "platform-secret", cfg.Gateway.KeySecret)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestConfig_ApplyPlatformDefaultsKeepsExplicit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{
		Addr:    "127.0.0.1:7000",
		Storage: StorageConfig{DatabaseURL: "postgres://explicit/db"},
	}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
