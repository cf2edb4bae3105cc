package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/hivemarket/honeyshop/internal/domain/discount"
)

// Config holds the complete application configuration, loadable from
// environment variables (HONEY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (HONEY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for operator API key hashing (HONEY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	AuditPath    string `default:"" usage:"Path of the append-only order audit log; empty disables it" flag:"audit-path"`
	Discount     DiscountConfig
	Fulfillment  FulfillmentConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// DiscountConfig controls the single-use discount code policy.
type DiscountConfig struct {
	Percent  int64  `default:"10" usage:"Discount percentage applied by a valid code"`
	MinTotal string `default:"0"  usage:"Minimum order total eligible for a discount" flag:"min-total"`
}

// FulfillmentConfig controls the order state machine policy.
type FulfillmentConfig struct {
	ConfirmRequiresReceipt bool `default:"true" usage:"Operators may only confirm orders with a submitted receipt" flag:"confirm-requires-receipt"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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
		EnvPrefix: "HONEY",
		Files:     []string{"config.yaml", "/etc/honeyshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set HONEY_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.DiscountPolicy(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DiscountPolicy converts the raw discount settings into a domain policy.
func (c *Config) DiscountPolicy() (discount.Policy, error) {
	minTotal, err := decimal.NewFromString(c.Discount.MinTotal)
	if err != nil {
		return discount.Policy{}, errors.Wrapf(err, "invalid discount min total %q", c.Discount.MinTotal)
	}
	return discount.Policy{
		Percent:  c.Discount.Percent,
		MinTotal: minTotal,
	}, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's HONEY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
