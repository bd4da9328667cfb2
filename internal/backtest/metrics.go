package backtest

import (
	"math"
	"time"

	"quantlab/internal/market"
)

// computeStats 从已平仓交易与资金曲线推出汇总指标。
func computeStats(cfg Config, trades []Trade, equity []EquityPoint, interval string) Stats {
	stats := Stats{
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		FinishedAt:     time.Now(),
	}
	if len(equity) > 0 {
		stats.FinalEquity = equity[len(equity)-1].Equity
	}
	if cfg.InitialCapital > 0 {
		stats.TotalReturn = (stats.FinalEquity - cfg.InitialCapital) / cfg.InitialCapital
	}
	for _, pt := range equity {
		if pt.Drawdown > stats.MaxDrawdown {
			stats.MaxDrawdown = pt.Drawdown
		}
	}

	var sumWin, sumLoss float64
	var holding int64
	for _, t := range trades {
		stats.Trades++
		holding += t.HoldingMs
		if t.ForcedExit {
			stats.ForcedExits++
		}
		if t.PnL >= 0 {
			stats.Wins++
			sumWin += t.PnL
			if t.PnL > stats.MaxWin {
				stats.MaxWin = t.PnL
			}
		} else {
			stats.Losses++
			sumLoss += t.PnL
			if t.PnL < stats.MaxLoss {
				stats.MaxLoss = t.PnL
			}
		}
	}
	if stats.Trades > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
		stats.AvgHoldingMs = holding / int64(stats.Trades)
	}
	if stats.Wins > 0 {
		stats.AvgWin = sumWin / float64(stats.Wins)
	}
	if stats.Losses > 0 {
		stats.AvgLoss = sumLoss / float64(stats.Losses)
	}
	stats.Sharpe = sharpeRatio(equity, interval)
	return stats
}

// sharpeRatio 用资金曲线的逐 bar 收益率计算类夏普比率
// （无风险利率按 0 处理），按周期数年化。
func sharpeRatio(equity []EquityPoint, interval string) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear(interval))
}

func periodsPerYear(interval string) float64 {
	iv, err := market.ParseInterval(interval)
	if err != nil || iv.Duration <= 0 {
		return 252
	}
	if iv.Key == "1d" {
		return 252 // 交易日
	}
	return float64(365 * 24 * time.Hour / iv.Duration)
}
