package strategy

import (
	"fmt"

	"quantlab/internal/indicator"
	"quantlab/internal/market"
)

// MACross 均线交叉：快线上穿慢线进场，下穿出场。
// 只在交叉发生的那根 K 线上产生信号，其余为 None。
type MACross struct {
	Fast int
	Slow int
}

func (s *MACross) Name() string { return "ma_cross" }

func (s *MACross) GenerateSignals(bars market.Series) ([]Signal, error) {
	if s.Fast >= s.Slow {
		return nil, fmt.Errorf("ma_cross: fast=%d 必须小于 slow=%d", s.Fast, s.Slow)
	}
	fast, err := indicator.Compute(bars, indicator.Spec{Name: "sma", Window: s.Fast})
	if err != nil {
		return nil, err
	}
	slow, err := indicator.Compute(bars, indicator.Spec{Name: "sma", Window: s.Slow})
	if err != nil {
		return nil, err
	}
	// 预热期视同"快线在慢线下方"，因此预热结束后若快线已在上方，
	// 第一根有定义的 K 线即产生进场信号（与状态变化对齐）。
	signals := make([]Signal, len(bars.Bars))
	prevAbove := false
	for i := range bars.Bars {
		if !fast.Defined(i) || !slow.Defined(i) {
			continue
		}
		above := fast.Values[i] > slow.Values[i]
		if above != prevAbove {
			if above {
				signals[i] = EnterLong
			} else {
				signals[i] = ExitLong
			}
		}
		prevAbove = above
	}
	return signals, nil
}
