package app

import (
	"context"
	"fmt"

	"quantlab/internal/backtest"
	qlcfg "quantlab/internal/config"
	cfgloader "quantlab/internal/config/loader"
	"quantlab/internal/data"
	"quantlab/internal/logger"
	"quantlab/internal/report"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→对外提供服务或单发回测。
type App struct {
	cfg      *qlcfg.Config
	store    *data.Store
	data     *data.Service
	profiles *cfgloader.Registry
	runs     *backtest.RunStore
	sim      *backtest.Simulator
	reports  *report.Builder
	server   *backtest.HTTPServer
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *qlcfg.Config) (*App, error) {
	return Build(cfg)
}

// Serve 启动 HTTP 服务与 profile 热加载，阻塞直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.sim.SetContext(ctx)
	if err := a.profiles.Watch(); err != nil {
		logger.Warnf("profile 热加载未启用: %v", err)
	}
	logger.Infof("✓ HTTP 服务监听 %s", a.cfg.App.HTTPAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	return err
}

// RunOnce 同步执行一次回测并返回文本摘要（CLI run 模式）。
func (a *App) RunOnce(ctx context.Context, req backtest.RunRequest) (backtest.Result, string, error) {
	result, err := a.sim.Execute(ctx, req)
	if err != nil {
		return backtest.Result{}, "", err
	}
	return result, report.Summary(result), nil
}

// Volatility 拉取行情后生成波动率分布报告（CLI vol 模式）。
func (a *App) Volatility(ctx context.Context, symbol, interval string, start, end int64, inputReturn float64) (report.VolatilityReport, string, error) {
	if _, err := a.data.Acquire(ctx, symbol, interval, start, end); err != nil {
		return report.VolatilityReport{}, "", err
	}
	return a.reports.Volatility(ctx, symbol, interval, start, end, inputReturn)
}

// Close 释放存储资源，幂等。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.profiles != nil {
		_ = a.profiles.Close()
	}
	if a.runs != nil {
		_ = a.runs.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
