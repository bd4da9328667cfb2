package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9985"
	}
	if c.App.ProfilesPath == "" {
		c.App.ProfilesPath = "configs/profiles.yaml"
	}
	if c.Data.PrimaryProvider == "" {
		c.Data.PrimaryProvider = "yahoo"
	}
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = "data/cache"
	}
	if c.Data.DefaultInterval == "" {
		c.Data.DefaultInterval = "1d"
	}
	if c.Data.RateLimitPerMin <= 0 {
		c.Data.RateLimitPerMin = 300
	}
	if c.Data.FetchTimeoutSeconds <= 0 {
		c.Data.FetchTimeoutSeconds = 20
	}
	if c.Data.MaxParallel <= 0 {
		c.Data.MaxParallel = 4
	}
	if c.Backtest.ResultDB == "" {
		c.Backtest.ResultDB = "data/backtest.db"
	}
	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = 100000
	}
	if c.Backtest.PositionPct <= 0 {
		c.Backtest.PositionPct = 1
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = 2
	}
	if c.Backtest.DefaultStrategy == "" {
		c.Backtest.DefaultStrategy = "ma_cross"
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "data/reports"
	}
}
