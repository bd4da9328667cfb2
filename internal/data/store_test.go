package data

import (
	"context"
	"testing"

	"quantlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayMs = int64(86_400_000)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func daySeries(symbol string, startDay, n int) market.Series {
	s := market.Series{
		Symbol:   symbol,
		Interval: "1d",
		Start:    int64(startDay) * dayMs,
		End:      int64(startDay+n-1) * dayMs,
	}
	for i := 0; i < n; i++ {
		ts := int64(startDay+i) * dayMs
		price := 100 + float64(i)
		s.Bars = append(s.Bars, market.Bar{TS: ts, Open: price, High: price + 1, Low: price - 1, Close: price + 0.5, Volume: 1000})
	}
	return s
}

func TestStorePutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key{Symbol: "AAPL", Interval: "1d", Start: 10 * dayMs, End: 19 * dayMs}

	t.Run("未写入时 miss 不是错误", func(t *testing.T) {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	require.NoError(t, store.Put(ctx, key, daySeries("AAPL", 10, 10)))

	t.Run("完整覆盖后命中", func(t *testing.T) {
		got, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, got.Bars, 10)
		assert.Equal(t, "AAPL", got.Symbol)
		assert.NoError(t, got.Validate())
	})

	t.Run("子区间也命中且裁剪", func(t *testing.T) {
		sub := Key{Symbol: "AAPL", Interval: "1d", Start: 12 * dayMs, End: 14 * dayMs}
		got, ok, err := store.Get(ctx, sub)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got.Bars, 3)
		assert.Equal(t, 12*dayMs, got.Bars[0].TS)
	})

	t.Run("超出登记区间 miss", func(t *testing.T) {
		wide := Key{Symbol: "AAPL", Interval: "1d", Start: 10 * dayMs, End: 25 * dayMs}
		_, ok, err := store.Get(ctx, wide)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// 休市日没有 bar，但只要区间登记过就不算缺口。
func TestStoreCoverageIgnoresMissingBars(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key{Symbol: "SPY", Interval: "1d", Start: 0, End: 9 * dayMs}
	series := market.Series{Symbol: "SPY", Interval: "1d", Start: 0, End: 9 * dayMs}
	for _, day := range []int64{0, 1, 2, 5, 6} { // 周末/假日空洞
		series.Bars = append(series.Bars, market.Bar{TS: day * dayMs, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	require.NoError(t, store.Put(ctx, key, series))

	report, err := store.Coverage(ctx, "SPY", "1d", 0, 9*dayMs)
	require.NoError(t, err)
	assert.True(t, report.Complete())

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Bars, 5)
}

func TestStoreCoverageGaps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Key{Symbol: "AAPL", Interval: "1d", Start: 0, End: 4 * dayMs}, daySeries("AAPL", 0, 5)))
	require.NoError(t, store.Put(ctx, Key{Symbol: "AAPL", Interval: "1d", Start: 10 * dayMs, End: 14 * dayMs}, daySeries("AAPL", 10, 5)))

	report, err := store.Coverage(ctx, "AAPL", "1d", 0, 14*dayMs)
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, 4*dayMs+1, report.Gaps[0].From)
	assert.Equal(t, 10*dayMs-1, report.Gaps[0].To)

	t.Run("相邻区间合并", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, Key{Symbol: "AAPL", Interval: "1d", Start: 4*dayMs + 1, End: 10*dayMs - 1}, market.Series{Symbol: "AAPL", Interval: "1d"}))
		report, err := store.Coverage(ctx, "AAPL", "1d", 0, 14*dayMs)
		require.NoError(t, err)
		assert.True(t, report.Complete())
		assert.Len(t, report.Spans, 1)
	})
}

func TestStoreInvalidate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key{Symbol: "AAPL", Interval: "1d", Start: 0, End: 9 * dayMs}
	require.NoError(t, store.Put(ctx, key, daySeries("AAPL", 0, 10)))

	mid := Key{Symbol: "AAPL", Interval: "1d", Start: 3 * dayMs, End: 6 * dayMs}
	require.NoError(t, store.Invalidate(ctx, mid))

	report, err := store.Coverage(ctx, "AAPL", "1d", 0, 9*dayMs)
	require.NoError(t, err)
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, 3*dayMs, report.Gaps[0].From)
	assert.Equal(t, 6*dayMs, report.Gaps[0].To)

	// 两侧剩余区间仍命中
	left := Key{Symbol: "AAPL", Interval: "1d", Start: 0, End: 2 * dayMs}
	_, ok, err := store.Get(ctx, left)
	require.NoError(t, err)
	assert.True(t, ok)

	bars, err := store.CachedBars(ctx, "AAPL", "1d", 0, 9*dayMs)
	require.NoError(t, err)
	assert.Len(t, bars.Bars, 6)
}

func TestStoreManifest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key{Symbol: "aapl", Interval: "1d", Start: 5 * dayMs, End: 9 * dayMs}
	require.NoError(t, store.Put(ctx, key, daySeries("AAPL", 5, 5)))

	m, err := store.Manifest(ctx, "AAPL", "1d")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", m.Symbol)
	assert.Equal(t, "1d", m.Interval)
	assert.Equal(t, int64(5), m.Rows)
	assert.Equal(t, 5*dayMs, m.MinTS)
	assert.Equal(t, 9*dayMs, m.MaxTS)
	assert.Positive(t, m.LastSyncAt)
}

// 同 ts 重复写入时后写覆盖先写。
func TestStorePutLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := Key{Symbol: "AAPL", Interval: "1d", Start: 0, End: 0}
	first := market.Series{Symbol: "AAPL", Interval: "1d", Bars: []market.Bar{{TS: 0, Open: 1, High: 1, Low: 1, Close: 100, Volume: 1}}}
	second := market.Series{Symbol: "AAPL", Interval: "1d", Bars: []market.Bar{{TS: 0, Open: 1, High: 1, Low: 1, Close: 200, Volume: 1}}}
	require.NoError(t, store.Put(ctx, key, first))
	require.NoError(t, store.Put(ctx, key, second))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Bars, 1)
	assert.Equal(t, 200.0, got.Bars[0].Close)
}
