package backtest

import (
	"context"
	"path/filepath"
	"testing"

	"quantlab/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewRunStore(filepath.Join(t.TempDir(), "backtest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(id string) Run {
	return Run{
		ID:       id,
		Symbol:   "AAPL",
		Interval: "1d",
		Strategy: "ma_cross",
		Status:   RunStatusPending,
		StartTS:  0,
		EndTS:    30 * dayMs,
		Config: RunConfig{
			Symbol:   "AAPL",
			Interval: "1d",
			StartTS:  0,
			EndTS:    30 * dayMs,
			Strategy: "ma_cross",
			Params:   strategy.Params{"fast_period": 5, "slow_period": 20},
			Engine:   Config{InitialCapital: 100000, PositionPct: 1},
		},
	}
}

func TestRunStoreLifecycle(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, sampleRun("run-1")))

	t.Run("插入后可读回", func(t *testing.T) {
		run, ok, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, RunStatusPending, run.Status)
		assert.Equal(t, "AAPL", run.Symbol)
		assert.Equal(t, 5, run.Config.Params["fast_period"])
	})

	t.Run("状态更新", func(t *testing.T) {
		require.NoError(t, store.UpdateStatus(ctx, "run-1", RunStatusRunning, "获取数据…"))
		run, ok, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, RunStatusRunning, run.Status)
		assert.Equal(t, "获取数据…", run.Message)
	})

	t.Run("不存在的 run 返回 ok=false", func(t *testing.T) {
		_, ok, err := store.GetRun(ctx, "no-such-run")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRunStoreFinishRun(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, sampleRun("run-2")))

	result := Result{
		Symbol:   "AAPL",
		Interval: "1d",
		Trades: []Trade{
			{Symbol: "AAPL", Side: SideLong, EntryTS: dayMs, ExitTS: 5 * dayMs, EntryPrice: 100, ExitPrice: 110, Quantity: 10, PnL: 100, PnLPct: 0.1, HoldingMs: 4 * dayMs, ForcedExit: true},
		},
		Equity: []EquityPoint{
			{TS: 0, Equity: 100000, Cash: 100000},
			{TS: dayMs, Equity: 100050, Cash: 100000, Drawdown: 0},
			{TS: 5 * dayMs, Equity: 100100, Cash: 100100, Drawdown: 0},
		},
		Stats: Stats{InitialCapital: 100000, FinalEquity: 100100, TotalReturn: 0.001, Trades: 1, Wins: 1, WinRate: 1, ForcedExits: 1},
	}
	require.NoError(t, store.FinishRun(ctx, "run-2", result))

	run, ok, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RunStatusDone, run.Status)
	assert.Equal(t, 100100.0, run.Stats.FinalEquity)
	assert.Equal(t, 1, run.Stats.ForcedExits)

	trades, err := store.TradesForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, SideLong, trades[0].Side)
	assert.True(t, trades[0].ForcedExit)

	equity, err := store.EquityForRun(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, equity, 3)
	assert.Equal(t, 100100.0, equity[2].Equity)
}

func TestRunStoreList(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.InsertRun(ctx, sampleRun(id)))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
