package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantlab/internal/data"
	"quantlab/internal/market"
	"quantlab/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingSource 返回单调上涨的合成行情。
type risingSource struct{}

func (risingSource) Name() string { return "yahoo" }

func (risingSource) Fetch(_ context.Context, req data.Request) (market.Series, error) {
	s := market.Series{Symbol: req.Symbol, Interval: req.Interval.Key, Start: req.Start, End: req.End}
	step := req.Interval.Millis()
	for ts := req.Start; ts <= req.End; ts += step {
		price := 100 + float64(ts/step)
		s.Bars = append(s.Bars, market.Bar{TS: ts, Open: price - 0.5, High: price + 1, Low: price - 1, Close: price, Volume: 10})
	}
	return s, nil
}

func newTestSimulator(t *testing.T) (*Simulator, *RunStore) {
	t.Helper()
	store, err := data.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := data.NewService(data.ServiceConfig{
		Store:           store,
		Sources:         []data.Source{risingSource{}},
		RateLimitPerMin: 6000,
		FetchTimeout:    time.Second,
	})
	require.NoError(t, err)

	runs, err := NewRunStore(filepath.Join(t.TempDir(), "backtest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	sim, err := NewSimulator(SimulatorConfig{
		Data:            svc,
		Runs:            runs,
		Defaults:        Config{InitialCapital: 100000},
		DefaultInterval: "1d",
		DefaultStrategy: "ma_cross",
		MaxConcurrent:   2,
	})
	require.NoError(t, err)
	return sim, runs
}

func TestSimulatorExecute(t *testing.T) {
	sim, runs := newTestSimulator(t)
	ctx := context.Background()

	result, err := sim.Execute(ctx, RunRequest{
		Symbol:   "aapl",
		Interval: "1d",
		StartTS:  1,
		EndTS:    40 * dayMs,
		Strategy: "ma_cross",
		Params:   strategy.Params{"fast_period": 5, "slow_period": 20},
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", result.Symbol)
	require.Len(t, result.Trades, 1)
	assert.True(t, result.Trades[0].ForcedExit)
	assert.Positive(t, result.Stats.TotalReturn)

	list, err := runs.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, RunStatusDone, list[0].Status)
	assert.InDelta(t, result.Stats.FinalEquity, list[0].Stats.FinalEquity, 1e-6)
}

func TestSimulatorRejectsBadRequests(t *testing.T) {
	sim, _ := newTestSimulator(t)

	t.Run("缺 symbol", func(t *testing.T) {
		_, err := sim.StartRun(RunRequest{StartTS: 1, EndTS: dayMs})
		assert.Error(t, err)
	})

	t.Run("区间颠倒", func(t *testing.T) {
		_, err := sim.StartRun(RunRequest{Symbol: "AAPL", StartTS: dayMs, EndTS: 1})
		assert.Error(t, err)
	})

	t.Run("未知策略", func(t *testing.T) {
		_, err := sim.StartRun(RunRequest{Symbol: "AAPL", StartTS: 1, EndTS: dayMs, Strategy: "momentum"})
		assert.Error(t, err)
	})

	t.Run("未知 profile", func(t *testing.T) {
		_, err := sim.StartRun(RunRequest{Symbol: "AAPL", StartTS: 1, EndTS: dayMs, Profile: "ghost"})
		assert.Error(t, err)
	})
}

func TestSimulatorStartRunAsync(t *testing.T) {
	sim, runs := newTestSimulator(t)
	ctx := context.Background()

	run, err := sim.StartRun(RunRequest{
		Symbol:  "MSFT",
		StartTS: 1,
		EndTS:   40 * dayMs,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.Equal(t, "ma_cross", run.Strategy)

	require.Eventually(t, func() bool {
		got, ok, err := runs.GetRun(ctx, run.ID)
		return err == nil && ok && got.Status == RunStatusDone
	}, 10*time.Second, 50*time.Millisecond)
}
