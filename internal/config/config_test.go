package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9985", cfg.App.HTTPAddr)
	assert.Equal(t, "yahoo", cfg.Data.PrimaryProvider)
	assert.Equal(t, "1d", cfg.Data.DefaultInterval)
	assert.Equal(t, 300, cfg.Data.RateLimitPerMin)
	assert.Equal(t, 100000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 1.0, cfg.Backtest.PositionPct)
	assert.Equal(t, "ma_cross", cfg.Backtest.DefaultStrategy)
	assert.Equal(t, "data/reports", cfg.Report.OutputDir)
}

func TestLoadFull(t *testing.T) {
	t.Setenv("TEST_POLYGON_KEY", "pk_live_123")
	path := writeConfig(t, `
app:
  http_addr: ":8080"
data:
  primary_provider: polygon
  backup_providers: [yahoo, polygon, binance]
  api_keys:
    Polygon: ${TEST_POLYGON_KEY}
  rate_limit_per_min: 60
backtest:
  commission: 0.001
  position_pct: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	// primary 在前、重复项去重
	assert.Equal(t, []string{"polygon", "yahoo", "binance"}, cfg.Data.Providers())
	// key 名小写归一、环境变量展开
	assert.Equal(t, "pk_live_123", cfg.Data.APIKey("polygon"))
	assert.Equal(t, 0.001, cfg.Backtest.Commission)
	assert.Equal(t, 0.5, cfg.Backtest.PositionPct)
}

func TestLoadValidation(t *testing.T) {
	t.Run("未知数据源", func(t *testing.T) {
		path := writeConfig(t, "data:\n  primary_provider: bloomberg\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bloomberg")
	})

	t.Run("非法周期", func(t *testing.T) {
		path := writeConfig(t, "data:\n  default_interval: 13m\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("负佣金", func(t *testing.T) {
		path := writeConfig(t, "backtest:\n  commission: -0.1\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("仓位比例越界", func(t *testing.T) {
		path := writeConfig(t, "backtest:\n  position_pct: 2\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}
