package backtest

import (
	"context"
	"fmt"
	"strings"

	"quantlab/internal/config/loader"
	"quantlab/internal/data"
	"quantlab/internal/logger"
	"quantlab/internal/strategy"

	"github.com/google/uuid"
)

type SimulatorConfig struct {
	Data            *data.Service
	Runs            *RunStore
	Profiles        *loader.Registry
	Defaults        Config
	DefaultInterval string
	DefaultStrategy string
	MaxConcurrent   int
}

// Simulator 负责把一次回测请求推演为完整 Result：
// 取数 → 信号 → 引擎 → 落库。任务异步执行，进度通过 RunStore 查询。
type Simulator struct {
	data            *data.Service
	runs            *RunStore
	profiles        *loader.Registry
	defaults        Config
	defaultInterval string
	defaultStrategy string

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Data == nil {
		return nil, fmt.Errorf("data service 不能为空")
	}
	if cfg.Runs == nil {
		return nil, fmt.Errorf("run store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	defaultInterval := cfg.DefaultInterval
	if defaultInterval == "" {
		defaultInterval = "1d"
	}
	defaultStrategy := cfg.DefaultStrategy
	if defaultStrategy == "" {
		defaultStrategy = "ma_cross"
	}
	return &Simulator{
		data:            cfg.Data,
		runs:            cfg.Runs,
		profiles:        cfg.Profiles,
		defaults:        cfg.Defaults.withDefaults(),
		defaultInterval: defaultInterval,
		defaultStrategy: defaultStrategy,
		sem:             make(chan struct{}, maxConcurrent),
		baseCtx:         context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// resolve 把请求展开成参数快照：profile 先铺底，显式字段覆盖。
// 配置类错误（未知策略、非法参数）在这里立刻失败，不产生部分结果。
func (s *Simulator) resolve(req RunRequest) (Run, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return Run{}, fmt.Errorf("symbol 不能为空")
	}
	if req.StartTS <= 0 || req.EndTS <= 0 || req.EndTS <= req.StartTS {
		return Run{}, fmt.Errorf("%s: start/end 非法", symbol)
	}

	interval := req.Interval
	stratName := req.Strategy
	params := strategy.Params{}

	profile, found := loader.StrategyProfile{}, false
	if s.profiles != nil {
		profile, found = s.profiles.Lookup(req.Profile)
	}
	if found {
		if stratName == "" {
			stratName = profile.Strategy
		}
		if interval == "" {
			interval = profile.Interval
		}
		for k, v := range profile.Params {
			params[k] = v
		}
	} else if req.Profile != "" {
		return Run{}, fmt.Errorf("未知 profile: %s", req.Profile)
	}
	for k, v := range req.Params {
		params[k] = v
	}
	if stratName == "" {
		stratName = s.defaultStrategy
	}
	if interval == "" {
		interval = s.defaultInterval
	}
	if _, err := strategy.New(stratName, params); err != nil {
		return Run{}, err
	}

	engineCfg := s.defaults
	if req.InitialCapital > 0 {
		engineCfg.InitialCapital = req.InitialCapital
	}
	if req.Commission > 0 {
		engineCfg.Commission = req.Commission
	}
	if req.Slippage > 0 {
		engineCfg.Slippage = req.Slippage
	}
	if req.PositionPct > 0 {
		engineCfg.PositionPct = req.PositionPct
	}
	if _, err := NewEngine(engineCfg); err != nil {
		return Run{}, err
	}

	return Run{
		ID:       uuid.NewString(),
		Symbol:   symbol,
		Interval: interval,
		Strategy: stratName,
		Status:   RunStatusPending,
		StartTS:  req.StartTS,
		EndTS:    req.EndTS,
		Config: RunConfig{
			Symbol:   symbol,
			Interval: interval,
			StartTS:  req.StartTS,
			EndTS:    req.EndTS,
			Strategy: stratName,
			Params:   params,
			Engine:   engineCfg,
		},
	}, nil
}

// StartRun 创建回测任务并立即返回，推演在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	run, err := s.resolve(req)
	if err != nil {
		return Run{}, err
	}
	if err := s.runs.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run)
	return run, nil
}

// Execute 同步执行一次回测（CLI 单发模式），同样落库。
func (s *Simulator) Execute(ctx context.Context, req RunRequest) (Result, error) {
	run, err := s.resolve(req)
	if err != nil {
		return Result{}, err
	}
	if err := s.runs.InsertRun(ctx, run); err != nil {
		return Result{}, err
	}
	result, err := s.execute(ctx, run)
	if err != nil {
		_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return Result{}, err
	}
	if err := s.runs.FinishRun(ctx, run.ID, result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (s *Simulator) runLoop(run Run) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		_ = s.runs.UpdateStatus(context.Background(), run.ID, RunStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	result, err := s.execute(ctx, run)
	if err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", run.ID, err)
		_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	if err := s.runs.FinishRun(ctx, run.ID, result); err != nil {
		logger.Warnf("[backtest] run %s 写入结果失败: %v", run.ID, err)
		_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	logger.Infof("[backtest] run %s 完成: return=%.2f%% trades=%d maxDD=%.2f%%",
		run.ID, result.Stats.TotalReturn*100, result.Stats.Trades, result.Stats.MaxDrawdown*100)
}

func (s *Simulator) execute(ctx context.Context, run Run) (Result, error) {
	cfg := run.Config
	_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusRunning, fmt.Sprintf("获取 %s@%s 数据…", cfg.Symbol, cfg.Interval))
	series, err := s.data.Acquire(ctx, cfg.Symbol, cfg.Interval, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return Result{}, err
	}

	_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusRunning, "生成信号…")
	strat, err := strategy.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return Result{}, err
	}
	signals, err := strat.GenerateSignals(series)
	if err != nil {
		return Result{}, err
	}

	_ = s.runs.UpdateStatus(ctx, run.ID, RunStatusRunning, fmt.Sprintf("推演 %d 根 K 线…", len(series.Bars)))
	engine, err := NewEngine(cfg.Engine)
	if err != nil {
		return Result{}, err
	}
	return engine.Run(series, signals)
}
