package app

import (
	"fmt"
	"strings"
	"time"

	"quantlab/internal/backtest"
	qlcfg "quantlab/internal/config"
	cfgloader "quantlab/internal/config/loader"
	"quantlab/internal/data"
	"quantlab/internal/logger"
	"quantlab/internal/report"
)

// Build 按配置装配完整依赖图：缓存 → 数据源 → 协调器 → profile →
// 结果库 → 模拟器 → 报告 → HTTP。任何一环失败都整体失败。
func Build(cfg *qlcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := data.NewStore(cfg.Data.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
	}

	sources, err := buildSources(cfg.Data)
	if err != nil {
		store.Close()
		return nil, err
	}

	svc, err := data.NewService(data.ServiceConfig{
		Store:           store,
		Sources:         sources,
		RateLimitPerMin: cfg.Data.RateLimitPerMin,
		FetchTimeout:    time.Duration(cfg.Data.FetchTimeoutSeconds) * time.Second,
		MaxParallel:     cfg.Data.MaxParallel,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	logger.Infof("✓ 数据源优先级: %s", strings.Join(svc.Providers(), " → "))

	profiles, err := cfgloader.LoadRegistry(cfg.App.ProfilesPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("加载策略 profile 失败: %w", err)
	}
	if names := profiles.Names(); len(names) > 0 {
		logger.Infof("✓ 已加载 %d 个策略 profile: %v", len(names), names)
	}

	runs, err := backtest.NewRunStore(cfg.Backtest.ResultDB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Data:     svc,
		Runs:     runs,
		Profiles: profiles,
		Defaults: backtest.Config{
			InitialCapital: cfg.Backtest.InitialCapital,
			Commission:     cfg.Backtest.Commission,
			Slippage:       cfg.Backtest.Slippage,
			PositionPct:    cfg.Backtest.PositionPct,
		},
		DefaultInterval: cfg.Data.DefaultInterval,
		DefaultStrategy: cfg.Backtest.DefaultStrategy,
		MaxConcurrent:   cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	reports, err := report.NewBuilder(report.Config{
		OutputDir: cfg.Report.OutputDir,
		Snapshot:  cfg.Report.Snapshot,
	}, svc)
	if err != nil {
		store.Close()
		return nil, err
	}

	server, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      cfg.App.HTTPAddr,
		Data:      svc,
		Simulator: sim,
		Runs:      runs,
		Reports:   reports,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		store:    store,
		data:     svc,
		profiles: profiles,
		runs:     runs,
		sim:      sim,
		reports:  reports,
		server:   server,
	}, nil
}

// buildSources 按配置的优先级顺序实例化数据源。
func buildSources(cfg qlcfg.DataConfig) ([]data.Source, error) {
	names := cfg.Providers()
	if len(names) == 0 {
		return nil, fmt.Errorf("未配置任何数据源")
	}
	sources := make([]data.Source, 0, len(names))
	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	for _, name := range names {
		switch name {
		case "yahoo":
			sources = append(sources, data.NewYahooSource("", timeout))
		case "polygon":
			sources = append(sources, data.NewPolygonSource("", cfg.APIKey("polygon"), timeout))
		case "binance":
			sources = append(sources, data.NewBinanceSource(""))
		default:
			return nil, fmt.Errorf("%w: %s", data.ErrUnknownProvider, name)
		}
	}
	return sources, nil
}
