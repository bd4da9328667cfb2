package report

import (
	"testing"

	"quantlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeSeries(symbol string, closes ...float64) market.Series {
	s := market.Series{Symbol: symbol, Interval: "1d"}
	for i, c := range closes {
		s.Bars = append(s.Bars, market.Bar{TS: int64(i) * 86_400_000, Open: c, High: c, Low: c, Close: c, Volume: 1})
	}
	return s
}

func TestAnalyzeVolatility(t *testing.T) {
	// 收益序列: +10%, -10%, +5%, 0%
	series := closeSeries("nvdl", 100, 110, 99, 103.95, 103.95)

	rep, err := AnalyzeVolatility(series, 0.06)
	require.NoError(t, err)

	assert.Equal(t, "NVDL", rep.Symbol)
	assert.Equal(t, 5, rep.Bars)
	require.Len(t, rep.Returns, 4)
	assert.InDelta(t, 0.10, rep.Returns[0], 1e-9)
	assert.InDelta(t, -0.10, rep.Returns[1], 1e-9)

	assert.InDelta(t, -0.10, rep.Min, 1e-9)
	assert.InDelta(t, 0.10, rep.Max, 1e-9)
	assert.InDelta(t, 0.0125, rep.Mean, 1e-9)

	// 4 个样本中有 3 个低于 6%
	assert.InDelta(t, 0.75, rep.InputPercentile, 1e-9)

	require.Len(t, rep.Percentiles, 99)
	// 中位数落在 0% 与 5% 之间
	assert.Greater(t, rep.Percentiles[49], 0.0)
	assert.Less(t, rep.Percentiles[49], 0.05)
}

func TestAnalyzeVolatilityErrors(t *testing.T) {
	_, err := AnalyzeVolatility(closeSeries("X", 100), 0.05)
	assert.Error(t, err)

	_, err = AnalyzeVolatility(market.Series{Symbol: "X", Interval: "1d"}, 0.05)
	assert.Error(t, err)
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.0, percentile(sorted, 0), 1e-9)
	assert.InDelta(t, 4.0, percentile(sorted, 100), 1e-9)
	assert.InDelta(t, 2.5, percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 1.75, percentile(sorted, 25), 1e-9)
}

func TestVolatilitySummary(t *testing.T) {
	rep := VolatilityReport{Symbol: "NVDL", Interval: "1d", Bars: 365, InputReturn: 0.06, InputPercentile: 0.9132}
	s := rep.Summary()
	assert.Contains(t, s, "NVDL")
	assert.Contains(t, s, "6.0%")
	assert.Contains(t, s, "91.32%")
}
