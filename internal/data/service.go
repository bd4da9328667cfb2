package data

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"quantlab/internal/logger"
	"quantlab/internal/market"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ServiceConfig 配置采集协调器。Sources 按失败切换优先级排列（primary 在前）。
type ServiceConfig struct {
	Store           *Store
	Sources         []Source
	RateLimitPerMin int
	FetchTimeout    time.Duration
	MaxParallel     int
}

// Service 负责解析一次数据请求：先查缓存，缺口按优先级顺序
// 逐个数据源补齐，合并后回写缓存。切换严格串行，不并发竞速，
// 以尊重限流并保证缓存归属可复现。
type Service struct {
	store        *Store
	sources      []Source
	limiter      *rate.Limiter
	fetchTimeout time.Duration
	maxParallel  int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("至少需要一个数据源")
	}
	perSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		perSec = 5
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Service{
		store:        cfg.Store,
		sources:      cfg.Sources,
		limiter:      rate.NewLimiter(perSec, 1),
		fetchTimeout: timeout,
		maxParallel:  maxParallel,
	}, nil
}

// Providers 返回配置的优先级顺序（日志/调试用）。
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.Name())
	}
	return out
}

// Acquire 解析 symbol@interval 在 [start, end] 的 K 线。
// 缓存全量命中时不发出任何网络请求；部分命中只抓缺口。
func (s *Service) Acquire(ctx context.Context, symbol, interval string, start, end int64) (market.Series, error) {
	iv, err := market.ParseInterval(interval)
	if err != nil {
		return market.Series{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return market.Series{}, fmt.Errorf("symbol 不能为空")
	}
	start, end = iv.AlignRange(start, end)
	if start >= end {
		return market.Series{}, fmt.Errorf("%s@%s: start/end 无法构成区间", symbol, iv.Key)
	}
	key := Key{Symbol: symbol, Interval: iv.Key, Start: start, End: end}

	if cached, ok, err := s.store.Get(ctx, key); err != nil {
		return market.Series{}, err
	} else if ok {
		logger.Debugf("[data] %s 缓存命中（%d 根）", key, len(cached.Bars))
		return cached, nil
	}

	report, err := s.store.Coverage(ctx, symbol, iv.Key, start, end)
	if err != nil {
		return market.Series{}, err
	}
	logger.Infof("[data] %s 缓存缺口 %d 段，开始拉取", key, len(report.Gaps))

	for _, gap := range report.Gaps {
		fetched, attempts, err := s.fetchGap(ctx, symbol, iv, gap)
		if err != nil {
			return market.Series{}, &DataUnavailableError{
				Symbol:   symbol,
				Interval: iv.Key,
				From:     gap.From,
				To:       gap.To,
				Attempts: attempts,
			}
		}
		gapKey := Key{Symbol: symbol, Interval: iv.Key, Start: gap.From, End: gap.To}
		if err := s.store.Put(ctx, gapKey, fetched); err != nil {
			return market.Series{}, err
		}
	}

	merged, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return market.Series{}, err
	}
	if !ok {
		// Put 之后覆盖仍不完整说明实现有 bug，而不是数据问题。
		return market.Series{}, fmt.Errorf("%s: 写回后覆盖校验失败", key)
	}
	return merged, nil
}

// fetchGap 依次尝试每个数据源，第一个返回完整有效序列的胜出。
func (s *Service) fetchGap(ctx context.Context, symbol string, iv market.Interval, gap Gap) (market.Series, []string, error) {
	var attempts []string
	for _, src := range s.sources {
		if err := s.limiter.Wait(ctx); err != nil {
			return market.Series{}, attempts, err
		}
		fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		series, err := src.Fetch(fctx, Request{
			Symbol:   symbol,
			Interval: iv,
			Start:    gap.From,
			End:      gap.To,
		})
		cancel()
		if err != nil {
			attempts = append(attempts, err.Error())
			logger.Warnf("[data] %s@%s [%d,%d] 经 %s 拉取失败，切换下一数据源: %v",
				symbol, iv.Key, gap.From, gap.To, src.Name(), err)
			continue
		}
		logger.Infof("[data] %s@%s [%d,%d] 经 %s 拉取 %d 根", symbol, iv.Key, gap.From, gap.To, src.Name(), len(series.Bars))
		return series, attempts, nil
	}
	return market.Series{}, attempts, fmt.Errorf("所有数据源均失败")
}

// AcquireBatch 并行解析一篮子 symbol（各自独立的 pipeline，
// 仅共享缓存 Store）。任一失败则整体失败。
func (s *Service) AcquireBatch(ctx context.Context, symbols []string, interval string, start, end int64) (map[string]market.Series, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	var mu sync.Mutex
	out := make(map[string]market.Series, len(symbols))
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			series, err := s.Acquire(ctx, symbol, interval, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			out[strings.ToUpper(symbol)] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate 失效缓存中的指定区间。
func (s *Service) Invalidate(ctx context.Context, symbol, interval string, start, end int64) error {
	iv, err := market.ParseInterval(interval)
	if err != nil {
		return err
	}
	start, end = iv.AlignRange(start, end)
	return s.store.Invalidate(ctx, Key{Symbol: strings.ToUpper(symbol), Interval: iv.Key, Start: start, End: end})
}

// CachedBars 只读缓存查询（HTTP 查询接口使用，不触发拉取）。
func (s *Service) CachedBars(ctx context.Context, symbol, interval string, start, end int64) (market.Series, error) {
	return s.store.CachedBars(ctx, symbol, interval, start, end)
}

// ManifestInfo 读取本地 manifest。
func (s *Service) ManifestInfo(ctx context.Context, symbol, interval string) (Manifest, error) {
	return s.store.Manifest(ctx, symbol, interval)
}

// CoverageInfo 报告缓存对指定窗口的覆盖情况，不触发拉取。
func (s *Service) CoverageInfo(ctx context.Context, symbol, interval string, start, end int64) (CoverageReport, error) {
	iv, err := market.ParseInterval(interval)
	if err != nil {
		return CoverageReport{}, err
	}
	start, end = iv.AlignRange(start, end)
	return s.store.Coverage(ctx, strings.ToUpper(symbol), iv.Key, start, end)
}
