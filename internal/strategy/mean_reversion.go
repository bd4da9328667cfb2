package strategy

import (
	"quantlab/internal/indicator"
	"quantlab/internal/market"
)

// MeanReversion 均值回归：价格跌破均线买入、升破均线卖出。
// 信号逐根给出，持仓状态相同的重复信号由回测引擎按 no-op 处理。
type MeanReversion struct {
	Window int
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) GenerateSignals(bars market.Series) ([]Signal, error) {
	ma, err := indicator.Compute(bars, indicator.Spec{Name: "sma", Window: s.Window})
	if err != nil {
		return nil, err
	}
	signals := make([]Signal, len(bars.Bars))
	for i, b := range bars.Bars {
		if !ma.Defined(i) {
			continue
		}
		switch {
		case b.Close < ma.Values[i]:
			signals[i] = EnterLong
		case b.Close > ma.Values[i]:
			signals[i] = ExitLong
		}
	}
	return signals, nil
}
