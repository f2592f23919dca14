package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bankcore/internal/money"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource        string
	StoreDriver     string
	Port            string
	Env             string
	ShutdownTimeout time.Duration
	Bank            BankConfig
	Logging         LoggingConfig
}

// BankConfig seeds the bank-wide settings of a fresh store.
type BankConfig struct {
	BaseCurrency  money.Currency
	SavingsRate   decimal.Decimal // percent per year
	InvestmentFee money.Money
}

type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultPort            = "8080"
	defaultEnv             = "development"
	defaultShutdownTimeout = 10 * time.Second
	defaultCurrency        = "EUR"
	defaultSavingsRate     = "2.5"
	defaultInvestmentFee   = "1.00"
)

func Load() (*Config, error) {
	cfg := &Config{
		DBSource:        os.Getenv("DB_SOURCE"),
		StoreDriver:     strings.ToLower(valueOrDefault("STORE_DRIVER", DriverPostgres)),
		Port:            valueOrDefault("SERVER_PORT", defaultPort),
		Env:             valueOrDefault("ENVIRONMENT", defaultEnv),
		ShutdownTimeout: defaultShutdownTimeout,
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", "info"),
			Format: valueOrDefault("LOG_FORMAT", "text"),
		},
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", cfg.StoreDriver, DriverPostgres, DriverMemory)
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	currency, err := money.ParseCurrency(valueOrDefault("BASE_CURRENCY", defaultCurrency))
	if err != nil {
		return nil, fmt.Errorf("invalid BASE_CURRENCY: %w", err)
	}
	rate, err := decimal.NewFromString(valueOrDefault("DEFAULT_SAVINGS_RATE", defaultSavingsRate))
	if err != nil || rate.IsNegative() {
		return nil, fmt.Errorf("invalid DEFAULT_SAVINGS_RATE %q", os.Getenv("DEFAULT_SAVINGS_RATE"))
	}
	fee, err := money.FromString(valueOrDefault("DEFAULT_INVESTMENT_FEE", defaultInvestmentFee), currency)
	if err != nil || fee.IsNegative() {
		return nil, fmt.Errorf("invalid DEFAULT_INVESTMENT_FEE %q", os.Getenv("DEFAULT_INVESTMENT_FEE"))
	}
	cfg.Bank = BankConfig{BaseCurrency: currency, SavingsRate: rate, InvestmentFee: fee}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
