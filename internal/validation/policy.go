package validation

import (
	"fmt"
	"strings"
	"time"

	"marketplace/config"
	"marketplace/pkg/money"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy holds the tunable limits the validators enforce.
type Policy struct {
	HoldPeriod          time.Duration
	MinPeriod           time.Duration
	MaxPeriod           time.Duration
	MaxSettlementAhead  time.Duration
	MinimumPayout       decimal.Decimal
	MaxAmount           decimal.Decimal
	SupportedCurrencies map[string]bool
	MaxBatchSize        int
	LockTimeout         time.Duration
}

func DefaultPolicy() Policy {
	p, _ := FromConfig(config.Default().Settlement)
	return p
}

func FromConfig(cfg config.SettlementConfig) (Policy, error) {
	minimum, err := money.Parse(cfg.MinimumPayout)
	if err != nil {
		return Policy{}, fmt.Errorf("minimum payout: %w", err)
	}
	maxAmount, err := money.Parse(cfg.MaxAmount)
	if err != nil {
		return Policy{}, fmt.Errorf("max amount: %w", err)
	}
	currencies := make(map[string]bool, len(cfg.SupportedCurrencies))
	for _, c := range cfg.SupportedCurrencies {
		currencies[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return Policy{
		HoldPeriod:          time.Duration(cfg.HoldPeriodDays) * day,
		MinPeriod:           time.Duration(cfg.MinPeriodDays) * day,
		MaxPeriod:           time.Duration(cfg.MaxPeriodDays) * day,
		MaxSettlementAhead:  time.Duration(cfg.MaxSettlementAheadDays) * day,
		MinimumPayout:       minimum,
		MaxAmount:           maxAmount,
		SupportedCurrencies: currencies,
		MaxBatchSize:        cfg.MaxBatchSize,
		LockTimeout:         cfg.LockTimeout,
	}, nil
}

func (p Policy) SupportsCurrency(c string) bool {
	return p.SupportedCurrencies[strings.ToUpper(c)]
}
