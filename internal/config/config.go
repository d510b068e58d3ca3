package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	// BaseURL is the externally reachable origin used when building
	// claim links handed to creators.
	BaseURL string

	OTLPEndpoint string

	MetricsPush MetricsPushConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Stripe StripeConfig
	Wise   WiseConfig
	SMTP   SMTPConfig

	InvoiceStorageDir     string
	InvoiceValidatorURL   string
	InvoiceValidatorToken string

	Bootstrap BootstrapConfig
}

type BootstrapConfig struct {
	// EnsureAdminAPIKey mints a bootstrap admin key on a fresh database so
	// the API is usable without manual setup. Disable it when keys are
	// provisioned out of band.
	EnsureAdminAPIKey bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type WiseConfig struct {
	APIToken  string
	ProfileID string

	// WebhookPublicKey is the PEM-encoded key Wise publishes for
	// verifying webhook signatures.
	WebhookPublicKey string
}

type SMTPConfig struct {
	// Host left empty disables claim emails; the NoOp provider takes over.
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type MetricsPushConfig struct {
	Enabled    bool
	Exporter   string
	Endpoint   string
	AuthToken  string
	InstanceID string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "creatorpay"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		BaseURL:     strings.TrimRight(getenv("BASE_URL", "http://localhost:8080"), "/"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		MetricsPush: MetricsPushConfig{
			Enabled:    getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:   strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:   strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken:  strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			InstanceID: strings.TrimSpace(getenv("METRICS_PUSH_INSTANCE_ID", "")),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creatorpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 0),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 0),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 0),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 0),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Wise: WiseConfig{
			APIToken:         strings.TrimSpace(getenv("WISE_API_TOKEN", "")),
			ProfileID:        strings.TrimSpace(getenv("WISE_PROFILE_ID", "")),
			WebhookPublicKey: getenv("WISE_WEBHOOK_PUBLIC_KEY", ""),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "payments@creatorpay.local"),
		},

		InvoiceStorageDir:     getenv("INVOICE_STORAGE_DIR", "data/invoices"),
		InvoiceValidatorURL:   strings.TrimSpace(getenv("INVOICE_VALIDATOR_URL", "")),
		InvoiceValidatorToken: strings.TrimSpace(getenv("INVOICE_VALIDATOR_TOKEN", "")),

		Bootstrap: BootstrapConfig{
			EnsureAdminAPIKey: getenvBool("BOOTSTRAP_ADMIN_API_KEY", true),
		},
	}

	return cfg
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
