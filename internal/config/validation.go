package config

import (
	"fmt"

	"quantlab/internal/market"
)

var knownProviders = map[string]bool{
	"yahoo":   true,
	"polygon": true,
	"binance": true,
}

func validate(cfg *Config) error {
	providers := cfg.Data.Providers()
	if len(providers) == 0 {
		return fmt.Errorf("data.primary_provider cannot be empty")
	}
	for _, p := range providers {
		if !knownProviders[p] {
			return fmt.Errorf("unknown provider %q (supported: yahoo, polygon, binance)", p)
		}
	}
	if _, err := market.ParseInterval(cfg.Data.DefaultInterval); err != nil {
		return fmt.Errorf("data.default_interval: %w", err)
	}
	if cfg.Backtest.Commission < 0 || cfg.Backtest.Slippage < 0 {
		return fmt.Errorf("backtest.commission/slippage cannot be negative")
	}
	if cfg.Backtest.PositionPct <= 0 || cfg.Backtest.PositionPct > 1 {
		return fmt.Errorf("backtest.position_pct must be in (0,1], got %v", cfg.Backtest.PositionPct)
	}
	return nil
}
