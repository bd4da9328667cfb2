package config

import "strings"

// Config 是 quantlab 的主配置载体。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Data     DataConfig     `mapstructure:"data"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Report   ReportConfig   `mapstructure:"report"`
}

type AppConfig struct {
	Env          string `mapstructure:"env"`
	LogLevel     string `mapstructure:"log_level"`
	LogPath      string `mapstructure:"log_path"`
	HTTPAddr     string `mapstructure:"http_addr"`
	ProfilesPath string `mapstructure:"profiles_path"`
}

// DataConfig 控制数据源优先级、API key 与缓存位置。
// api_keys 的值支持 ${ENV_VAR} 写法，加载时从环境变量展开。
type DataConfig struct {
	PrimaryProvider     string            `mapstructure:"primary_provider"`
	BackupProviders     []string          `mapstructure:"backup_providers"`
	APIKeys             map[string]string `mapstructure:"api_keys"`
	CacheDir            string            `mapstructure:"cache_dir"`
	DefaultInterval     string            `mapstructure:"default_interval"`
	RateLimitPerMin     int               `mapstructure:"rate_limit_per_min"`
	FetchTimeoutSeconds int               `mapstructure:"fetch_timeout_seconds"`
	MaxParallel         int               `mapstructure:"max_parallel"`
}

// Providers 返回配置的完整优先级顺序（primary 在前，去重）。
func (d DataConfig) Providers() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	add(d.PrimaryProvider)
	for _, p := range d.BackupProviders {
		add(p)
	}
	return out
}

// APIKey 返回指定数据源的 key（已做环境变量展开）。
func (d DataConfig) APIKey(provider string) string {
	if d.APIKeys == nil {
		return ""
	}
	return d.APIKeys[strings.ToLower(strings.TrimSpace(provider))]
}

type BacktestConfig struct {
	ResultDB        string  `mapstructure:"result_db"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	Commission      float64 `mapstructure:"commission"`
	Slippage        float64 `mapstructure:"slippage"`
	PositionPct     float64 `mapstructure:"position_pct"`
	MaxConcurrent   int     `mapstructure:"max_concurrent"`
	DefaultStrategy string  `mapstructure:"default_strategy"`
}

type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Snapshot  bool   `mapstructure:"snapshot"`
}
