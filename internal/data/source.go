package data

import (
	"context"
	"fmt"

	"quantlab/internal/market"
)

// Request 描述一次远端行情请求（Unix 毫秒，闭区间）。
type Request struct {
	Symbol   string
	Interval market.Interval
	Start    int64
	End      int64
}

// Source 统一不同数据源的拉取行为。实现方负责把原生响应
// 归一化为 market.Series，并拒绝时间戳乱序/重复的数据。
type Source interface {
	Fetch(ctx context.Context, req Request) (market.Series, error)
	Name() string
}

// checkFetched 对适配器产出做统一校验：空序列与时间戳
// 不单调都按 ErrProviderData 处理，不允许带病放行。
func checkFetched(provider string, s market.Series) error {
	if len(s.Bars) == 0 {
		return &DataError{Provider: provider, Cause: fmt.Errorf("empty response for %s@%s", s.Symbol, s.Interval)}
	}
	if err := s.Validate(); err != nil {
		return &DataError{Provider: provider, Cause: err}
	}
	return nil
}
