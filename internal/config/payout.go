package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// PayoutConfig drives the payout worker and the public claim endpoints.
// It lives in payout.yml so operators can retune it without a restart.
// Provider is the exception: it selects the processor adapter at startup
// and changing it requires a restart.
type PayoutConfig struct {
	Provider string `mapstructure:"provider"`

	// DefaultCurrency is used when a processor needs a currency before any
	// payment request exists, e.g. when registering a payout recipient.
	DefaultCurrency string `mapstructure:"defaultCurrency"`

	Worker WorkerConfig `mapstructure:"worker"`
	Claims ClaimConfig  `mapstructure:"claims"`
}

type WorkerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	BatchSize     int           `mapstructure:"batchSize"`
	JobTimeout    time.Duration `mapstructure:"jobTimeout"`
	LockTTL       time.Duration `mapstructure:"lockTTL"`
	MaxAttempts   int           `mapstructure:"maxAttempts"`
	MinimumAmount string        `mapstructure:"minimumAmount"`
}

// MinimumPayout parses the configured floor for automatic payouts. Requests
// below it stay claimed until an operator intervenes. Zero means no floor.
func (c WorkerConfig) MinimumPayout() decimal.Decimal {
	value := strings.TrimSpace(c.MinimumAmount)
	if value == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil || parsed.IsNegative() {
		return decimal.Zero
	}
	return parsed
}

type ClaimConfig struct {
	RatePerMinute int `mapstructure:"ratePerMinute"`
	Burst         int `mapstructure:"burst"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		Provider:        "stripe",
		DefaultCurrency: "EUR",
		Worker: WorkerConfig{
			Enabled:     true,
			Interval:    30 * time.Second,
			BatchSize:   25,
			JobTimeout:  2 * time.Minute,
			LockTTL:     5 * time.Minute,
			MaxAttempts: 5,
		},
		Claims: ClaimConfig{
			RatePerMinute: 30,
			Burst:         10,
		},
	}
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

func NewPayoutConfigHolder() (*PayoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creatorpay/config") // Volume-mounted config
	v.AddConfigPath("/etc/creatorpay")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("CREATORPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayoutConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		v.SetDefault("payout.provider", defaults.Provider)
		v.SetDefault("payout.defaultCurrency", defaults.DefaultCurrency)
		v.SetDefault("payout.worker", defaults.Worker)
		v.SetDefault("payout.claims", defaults.Claims)
	}

	var cfg PayoutConfig
	if err := v.UnmarshalKey("payout", &cfg); err != nil {
		return nil, err
	}
	cfg = withPayoutDefaults(cfg, defaults)
	if err := validatePayoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutConfig
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-config] reload failed: %v", err)
			return
		}
		updated = withPayoutDefaults(updated, defaults)
		if err := validatePayoutConfig(updated); err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

// NewStaticPayoutConfigHolder pins the holder to cfg, bypassing payout.yml.
// Missing fields are filled from defaults.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(withPayoutDefaults(cfg, DefaultPayoutConfig()))
	return holder
}

func withPayoutDefaults(cfg, defaults PayoutConfig) PayoutConfig {
	if strings.TrimSpace(cfg.Provider) == "" {
		cfg.Provider = defaults.Provider
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.Worker.Interval <= 0 {
		cfg.Worker.Interval = defaults.Worker.Interval
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = defaults.Worker.BatchSize
	}
	if cfg.Worker.JobTimeout <= 0 {
		cfg.Worker.JobTimeout = defaults.Worker.JobTimeout
	}
	if cfg.Worker.LockTTL <= 0 {
		cfg.Worker.LockTTL = defaults.Worker.LockTTL
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = defaults.Worker.MaxAttempts
	}
	if cfg.Claims.RatePerMinute <= 0 {
		cfg.Claims.RatePerMinute = defaults.Claims.RatePerMinute
	}
	if cfg.Claims.Burst <= 0 {
		cfg.Claims.Burst = defaults.Claims.Burst
	}
	return cfg
}

func validatePayoutConfig(cfg PayoutConfig) error {
	if len(strings.TrimSpace(cfg.DefaultCurrency)) != 3 {
		return errors.New("payout.defaultCurrency must be a three-letter currency code")
	}
	if cfg.Worker.LockTTL < cfg.Worker.JobTimeout {
		return errors.New("payout.worker.lockTTL must cover payout.worker.jobTimeout")
	}
	if value := strings.TrimSpace(cfg.Worker.MinimumAmount); value != "" {
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return errors.New("payout.worker.minimumAmount must be a decimal amount")
		}
		if parsed.IsNegative() {
			return errors.New("payout.worker.minimumAmount must not be negative")
		}
	}
	return nil
}
