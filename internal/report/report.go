package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"quantlab/internal/backtest"
	"quantlab/internal/data"
	"quantlab/internal/logger"
)

type Config struct {
	OutputDir string
	Snapshot  bool
}

// Builder 把回测结果渲染为 HTML 报告（可选 PNG 快照）。
// 报告用的 K 线直接取缓存，不触发新的拉取。
type Builder struct {
	outputDir string
	snapshot  bool
	data      *data.Service
}

func NewBuilder(cfg Config, svc *data.Service) (*Builder, error) {
	if svc == nil {
		return nil, fmt.Errorf("data service 不能为空")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join("data", "reports")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建报告目录失败: %w", err)
	}
	return &Builder{outputDir: cfg.OutputDir, snapshot: cfg.Snapshot, data: svc}, nil
}

// RunReport 渲染一次回测的完整报告页并返回 HTML 文件路径。
func (b *Builder) RunReport(ctx context.Context, run backtest.Run, trades []backtest.Trade, equity []backtest.EquityPoint) (string, error) {
	series, err := b.data.CachedBars(ctx, run.Symbol, run.Interval, run.StartTS, run.EndTS)
	if err != nil {
		return "", fmt.Errorf("读取 %s@%s 缓存失败: %w", run.Symbol, run.Interval, err)
	}
	page, err := buildRunPage(run, series, trades, equity)
	if err != nil {
		return "", err
	}

	htmlPath := filepath.Join(b.outputDir, fmt.Sprintf("run_%s.html", run.ID))
	f, err := os.Create(htmlPath)
	if err != nil {
		return "", err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return "", fmt.Errorf("渲染报告失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if b.snapshot {
		// 快照失败不影响报告本身，Chrome 不可用时降级为仅 HTML。
		if err := b.writeSnapshot(ctx, htmlPath); err != nil {
			logger.Warnf("[report] run %s PNG 快照失败: %v", run.ID, err)
		}
	}
	return htmlPath, nil
}

func (b *Builder) writeSnapshot(ctx context.Context, htmlPath string) error {
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		return err
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, snapshotHeightPx)
	if err != nil {
		return err
	}
	pngPath := strings.TrimSuffix(htmlPath, ".html") + ".png"
	return os.WriteFile(pngPath, png, 0o644)
}
