package indicator

import (
	"math"
	"testing"

	"quantlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeSeries(closes ...float64) market.Series {
	s := market.Series{Symbol: "TEST", Interval: "1d"}
	for i, c := range closes {
		s.Bars = append(s.Bars, market.Bar{TS: int64(i) * 86_400_000, Open: c, High: c, Low: c, Close: c, Volume: 1})
	}
	return s
}

func TestComputeSMA(t *testing.T) {
	bars := closeSeries(1, 2, 3, 4, 5)
	out, err := Compute(bars, Spec{Name: "sma", Window: 3})
	require.NoError(t, err)
	require.Len(t, out.Values, 5)

	// 预热期（前 window-1 根）必须是 NaN，不允许用 0 顶替
	assert.True(t, math.IsNaN(out.Values[0]))
	assert.True(t, math.IsNaN(out.Values[1]))
	assert.False(t, out.Defined(1))
	assert.True(t, out.Defined(2))

	assert.InDelta(t, 2.0, out.Values[2], 1e-9)
	assert.InDelta(t, 3.0, out.Values[3], 1e-9)
	assert.InDelta(t, 4.0, out.Values[4], 1e-9)

	// 时间戳与输入对齐
	assert.Equal(t, bars.Timestamps(), out.TS)
}

func TestComputeRSIWarmup(t *testing.T) {
	bars := closeSeries(44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 46.3, 46.2, 45.6, 46.2, 46.2, 46.0)
	out, err := Compute(bars, Spec{Name: "rsi", Window: 14})
	require.NoError(t, err)

	// rsi 需要 window+1 个样本，预热期为 window 根
	for i := 0; i < 14; i++ {
		assert.False(t, out.Defined(i), "index %d", i)
	}
	require.True(t, out.Defined(14))
	assert.Greater(t, out.Values[14], 0.0)
	assert.Less(t, out.Values[14], 100.0)
}

func TestComputeMACD(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	bars := closeSeries(closes...)

	out, err := Compute(bars, Spec{Name: "macd"})
	require.NoError(t, err)
	assert.False(t, out.Defined(24))
	assert.True(t, out.Defined(40))

	t.Run("fast 必须小于 slow", func(t *testing.T) {
		_, err := Compute(bars, Spec{Name: "macd", Fast: 26, Slow: 12, Signal: 9})
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestComputeBBands(t *testing.T) {
	bars := closeSeries(10, 11, 12, 11, 10, 9, 10, 11, 12, 13)
	upper, err := Compute(bars, Spec{Name: "bbands_upper", Window: 5})
	require.NoError(t, err)
	middle, err := Compute(bars, Spec{Name: "bbands_middle", Window: 5})
	require.NoError(t, err)
	lower, err := Compute(bars, Spec{Name: "bbands_lower", Window: 5})
	require.NoError(t, err)

	for i := 4; i < len(bars.Bars); i++ {
		assert.GreaterOrEqual(t, upper.Values[i], middle.Values[i])
		assert.GreaterOrEqual(t, middle.Values[i], lower.Values[i])
	}
}

func TestComputeErrors(t *testing.T) {
	bars := closeSeries(1, 2, 3)

	_, err := Compute(bars, Spec{Name: "vwap", Window: 3})
	assert.ErrorIs(t, err, ErrUnknownIndicator)

	_, err = Compute(bars, Spec{Name: "sma", Window: 0})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Compute(bars, Spec{Name: "sma", Window: 10})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
