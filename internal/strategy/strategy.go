package strategy

import (
	"fmt"
	"strings"

	"quantlab/internal/market"
)

// Signal 是按时间戳对齐的离散交易信号。
type Signal int

const (
	None Signal = iota
	EnterLong
	ExitLong
	EnterShort
	ExitShort
)

func (s Signal) String() string {
	switch s {
	case EnterLong:
		return "enter_long"
	case ExitLong:
		return "exit_long"
	case EnterShort:
		return "enter_short"
	case ExitShort:
		return "exit_short"
	default:
		return "none"
	}
}

// Strategy 根据 K 线产出信号序列（与输入一一对齐）。
// 回测引擎只消费信号，不关心策略内部。
type Strategy interface {
	Name() string
	GenerateSignals(bars market.Series) ([]Signal, error)
}

// Params 是策略参数表（来自 profile 配置）。
type Params map[string]int

func (p Params) get(key string, def int) int {
	if v, ok := p[key]; ok && v > 0 {
		return v
	}
	return def
}

// New 按名称构造策略，未配置的参数用默认值。
func New(name string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ma_cross", "macross":
		return &MACross{
			Fast: params.get("fast_period", 5),
			Slow: params.get("slow_period", 20),
		}, nil
	case "mean_reversion":
		return &MeanReversion{
			Window: params.get("window", 20),
		}, nil
	default:
		return nil, fmt.Errorf("未知策略: %s", name)
	}
}
