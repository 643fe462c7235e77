package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Settlement SettlementConfig `yaml:"settlement"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Payout     PayoutConfig     `yaml:"payout"`
	Events     EventsConfig     `yaml:"events"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	Env          string        `yaml:"env"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // mysql, postgres or sqlite
	DSN             string        `yaml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type JWTConfig struct {
	AccessSecret string        `yaml:"access_secret"`
	AccessExpiry time.Duration `yaml:"access_expiry"`
	Issuer       string        `yaml:"issuer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// SettlementConfig holds payout policy. Money values are decimal strings.
type SettlementConfig struct {
	HoldPeriodDays         int           `yaml:"hold_period_days"`
	MinPeriodDays          int           `yaml:"min_period_days"`
	MaxPeriodDays          int           `yaml:"max_period_days"`
	MaxSettlementAheadDays int           `yaml:"max_settlement_ahead_days"`
	MinimumPayout          string        `yaml:"minimum_payout"`
	MaxAmount              string        `yaml:"max_amount"`
	SupportedCurrencies    []string      `yaml:"supported_currencies"`
	DefaultCurrency        string        `yaml:"default_currency"`
	MaxRetries             int           `yaml:"max_retries"`
	RetryBackoffBase       time.Duration `yaml:"retry_backoff_base"`
	LockTimeout            time.Duration `yaml:"lock_timeout"`
	SweepLimit             int           `yaml:"sweep_limit"`
	MaxBatchSize           int           `yaml:"max_batch_size"`
	CommissionRate         string        `yaml:"commission_rate"`
	PlatformFeeRate        string        `yaml:"platform_fee_rate"`
	TaxRate                string        `yaml:"tax_rate"`
}

type SchedulerConfig struct {
	Enabled              bool          `yaml:"enabled"`
	PendingSweepInterval time.Duration `yaml:"pending_sweep_interval"`
	RetrySweepInterval   time.Duration `yaml:"retry_sweep_interval"`
	OutboxRelayInterval  time.Duration `yaml:"outbox_relay_interval"`
}

// PayoutConfig configures the payout gateway. With an empty KeyID the stub gateway is used.
type PayoutConfig struct {
	Provider      string        `yaml:"provider"`
	KeyID         string        `yaml:"key_id"`
	KeySecret     string        `yaml:"key_secret"`
	AccountNumber string        `yaml:"account_number"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Mode          string        `yaml:"mode"`
	Purpose       string        `yaml:"purpose"`
	Timeout       time.Duration `yaml:"timeout"`
	BaseURL       string        `yaml:"base_url"`
}

type EventsConfig struct {
	BufferSize  int  `yaml:"buffer_size"`
	MaxAttempts int  `yaml:"max_attempts"`
	UseOutbox   bool `yaml:"use_outbox"`
}

// Load builds the configuration from defaults, an optional .env file, an optional
// YAML file named by CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8099",
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			DSN:             "marketplace:marketplace@tcp(localhost:3306)/marketplace?charset=utf8mb4&parseTime=True&loc=UTC",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: "change-me-in-production",
			AccessExpiry: 15 * time.Minute,
			Issuer:       "marketplace",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Settlement: SettlementConfig{
			HoldPeriodDays:         7,
			MinPeriodDays:          1,
			MaxPeriodDays:          90,
			MaxSettlementAheadDays: 30,
			MinimumPayout:          "100.00",
			MaxAmount:              "100000000.00",
			SupportedCurrencies:    []string{"INR", "USD", "EUR", "GBP"},
			DefaultCurrency:        "INR",
			MaxRetries:             3,
			RetryBackoffBase:       30 * time.Minute,
			LockTimeout:            15 * time.Minute,
			SweepLimit:             500,
			MaxBatchSize:           1000,
			CommissionRate:         "0.05",
			PlatformFeeRate:        "0.01",
			TaxRate:                "0.18",
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			PendingSweepInterval: time.Hour,
			RetrySweepInterval:   30 * time.Minute,
			OutboxRelayInterval:  5 * time.Second,
		},
		Payout: PayoutConfig{
			Provider: "razorpay",
			Mode:     "IMPS",
			Purpose:  "payout",
			Timeout:  30 * time.Second,
		},
		Events: EventsConfig{
			BufferSize:  1024,
			MaxAttempts: 3,
			UseOutbox:   true,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Env, "ENV")
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.DSN, "DB_DSN")
	setInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setString(&cfg.JWT.AccessSecret, "JWT_ACCESS_SECRET")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setBool(&cfg.Log.Pretty, "LOG_PRETTY")
	setInt(&cfg.Settlement.HoldPeriodDays, "SETTLEMENT_HOLD_PERIOD_DAYS")
	setString(&cfg.Settlement.MinimumPayout, "SETTLEMENT_MINIMUM_PAYOUT")
	setInt(&cfg.Settlement.MaxRetries, "SETTLEMENT_MAX_RETRIES")
	setBool(&cfg.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setString(&cfg.Payout.KeyID, "RAZORPAY_KEY")
	setString(&cfg.Payout.KeySecret, "RAZORPAY_SECRET")
	setString(&cfg.Payout.AccountNumber, "RAZORPAY_ACCOUNT_NUMBER")
	setString(&cfg.Payout.WebhookSecret, "RAZORPAY_WEBHOOK_SECRET")
	setString(&cfg.Payout.BaseURL, "RAZORPAY_BASE_URL")
	if v := os.Getenv("SETTLEMENT_CURRENCIES"); v != "" {
		cfg.Settlement.SupportedCurrencies = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
