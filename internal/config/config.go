package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	CORSAllowedOrigins []string

	OTLPEndpoint string

	Stripe   StripeConfig
	Store    StoreConfig
	Checkout CheckoutConfig

	RateLimit RateLimitConfig

	MigrationsEnabled bool
}

// StripeConfig carries the payment provider credentials.
type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	ToleranceSeconds int
}

// StoreConfig describes the relational store shared with the client application.
type StoreConfig struct {
	Type            string
	URL             string
	ServiceKey      string
	SQLitePath      string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CheckoutRate  float64
	CheckoutBurst int
}

// Module exposes the validated configuration and the plan catalog. A missing
// required option aborts application start-up.
var Module = fx.Module("config",
	fx.Provide(Provide),
	fx.Provide(NewPlanCatalogHolder),
)

// Provide loads and validates the configuration.
func Provide() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "dentaldesk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		Stripe: StripeConfig{
			SecretKey:        strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
			WebhookSecret:    strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
			ToleranceSeconds: getenvInt("WEBHOOK_TOLERANCE_SECONDS", 300),
		},
		Store: StoreConfig{
			Type:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
			URL:             strings.TrimSpace(os.Getenv("STORE_URL")),
			ServiceKey:      strings.TrimSpace(os.Getenv("STORE_SERVICE_KEY")),
			SQLitePath:      getenv("DATABASE_SQLITE_PATH", "dentaldesk.db"),
			MaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
			MaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
			ConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
			ConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		},
		Checkout: CheckoutConfig{
			SuccessURL: getenv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/clinic/settings?checkout=success"),
			CancelURL:  getenv("CHECKOUT_CANCEL_URL", "http://localhost:5173/clinic/settings?checkout=cancelled"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst: getenvInt("RATE_LIMIT_CHECKOUT_BURST", 3),
		},
		MigrationsEnabled: getenvBool("MIGRATIONS_ENABLED", true),
	}
}

// ErrMissingConfig is returned when required options are absent.
var ErrMissingConfig = errors.New("missing_required_config")

// Validate reports every required option that is absent.
func (c Config) Validate() error {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Store.URL == "" {
		missing = append(missing, "STORE_URL")
	}
	if c.Store.ServiceKey == "" {
		missing = append(missing, "STORE_SERVICE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
