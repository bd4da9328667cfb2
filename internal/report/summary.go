package report

import (
	"fmt"
	"strings"
	"time"

	"quantlab/internal/backtest"
)

// Summary 生成单次回测的文本报告，CLI 单发模式直接打印。
func Summary(result backtest.Result) string {
	stats := result.Stats
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s 回测结果:\n", strings.ToUpper(result.Symbol))
	fmt.Fprintf(&b, "区间: %s  策略参数: %+v\n", result.Interval, result.Config)

	b.WriteString("\n风险指标:\n")
	fmt.Fprintf(&b, "初始资金: %.2f\n", stats.InitialCapital)
	fmt.Fprintf(&b, "期末权益: %.2f\n", stats.FinalEquity)
	fmt.Fprintf(&b, "总收益率: %.2f%%\n", stats.TotalReturn*100)
	fmt.Fprintf(&b, "夏普比率: %.2f\n", stats.Sharpe)
	fmt.Fprintf(&b, "最大回撤: %.2f%%\n", stats.MaxDrawdown*100)

	b.WriteString("\n交易统计:\n")
	fmt.Fprintf(&b, "总交易次数: %d\n", stats.Trades)
	if stats.Trades > 0 {
		fmt.Fprintf(&b, "胜率: %.2f%%\n", stats.WinRate*100)
		fmt.Fprintf(&b, "平均盈利: $%.2f\n", stats.AvgWin)
		fmt.Fprintf(&b, "平均亏损: $%.2f\n", stats.AvgLoss)
		fmt.Fprintf(&b, "最大单笔盈利: $%.2f  最大单笔亏损: $%.2f\n", stats.MaxWin, stats.MaxLoss)
		fmt.Fprintf(&b, "平均持仓时间: %s\n", formatHolding(stats.AvgHoldingMs))
		if stats.ForcedExits > 0 {
			fmt.Fprintf(&b, "期末强平笔数: %d\n", stats.ForcedExits)
		}
	}
	return b.String()
}

func formatHolding(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d >= 24*time.Hour {
		return fmt.Sprintf("%.1f 天", d.Hours()/24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%.1f 小时", d.Hours())
	}
	return fmt.Sprintf("%.1f 分钟", d.Minutes())
}
