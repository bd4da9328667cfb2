package report

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"quantlab/internal/market"
)

// VolatilityReport 描述一段行情的日内收益分布，以及给定假设涨幅
// 落在历史分布中的分位。
type VolatilityReport struct {
	Symbol          string    `json:"symbol"`
	Interval        string    `json:"interval"`
	Bars            int       `json:"bars"`
	Returns         []float64 `json:"returns"`
	Mean            float64   `json:"mean"`
	Std             float64   `json:"std"`
	Min             float64   `json:"min"`
	Max             float64   `json:"max"`
	Percentiles     []float64 `json:"percentiles"` // 第 1..99 分位
	InputReturn     float64   `json:"input_return"`
	InputPercentile float64   `json:"input_percentile"`
}

// AnalyzeVolatility 计算 close-to-close 收益序列及 inputReturn 的历史分位。
func AnalyzeVolatility(series market.Series, inputReturn float64) (VolatilityReport, error) {
	closes := series.Closes()
	if len(closes) < 2 {
		return VolatilityReport{}, fmt.Errorf("%s@%s: 至少需要 2 根 K 线计算收益", series.Symbol, series.Interval)
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) == 0 {
		return VolatilityReport{}, fmt.Errorf("%s@%s: 无有效收益样本", series.Symbol, series.Interval)
	}

	rep := VolatilityReport{
		Symbol:      strings.ToUpper(series.Symbol),
		Interval:    series.Interval,
		Bars:        len(series.Bars),
		Returns:     returns,
		InputReturn: inputReturn,
	}

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	rep.Min = sorted[0]
	rep.Max = sorted[len(sorted)-1]

	var sum float64
	for _, r := range returns {
		sum += r
	}
	rep.Mean = sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		d := r - rep.Mean
		sq += d * d
	}
	rep.Std = math.Sqrt(sq / float64(len(returns)))

	rep.Percentiles = make([]float64, 99)
	for p := 1; p <= 99; p++ {
		rep.Percentiles[p-1] = percentile(sorted, float64(p))
	}
	below := 0
	for _, r := range returns {
		if r < inputReturn {
			below++
		}
	}
	rep.InputPercentile = float64(below) / float64(len(returns))
	return rep, nil
}

// percentile 线性插值分位数，输入必须已排序。
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summary 输出 CLI 友好的一行结论。
func (r VolatilityReport) Summary() string {
	return fmt.Sprintf("%s 假设涨幅 %.1f%%，在近 %d 根 %s K 线中相当于分位数 %.2f%%（均值 %.2f%% 标准差 %.2f%%）",
		r.Symbol, r.InputReturn*100, r.Bars, r.Interval, r.InputPercentile*100, r.Mean*100, r.Std*100)
}

// Volatility 基于缓存行情生成波动率分布报告并渲染直方图页。
func (b *Builder) Volatility(ctx context.Context, symbol, interval string, start, end int64, inputReturn float64) (VolatilityReport, string, error) {
	series, err := b.data.CachedBars(ctx, symbol, interval, start, end)
	if err != nil {
		return VolatilityReport{}, "", err
	}
	rep, err := AnalyzeVolatility(series, inputReturn)
	if err != nil {
		return VolatilityReport{}, "", err
	}

	htmlPath := filepath.Join(b.outputDir, fmt.Sprintf("volatility_%s_%s.html", strings.ToLower(rep.Symbol), rep.Interval))
	f, err := os.Create(htmlPath)
	if err != nil {
		return VolatilityReport{}, "", err
	}
	defer f.Close()
	if err := buildVolatilityChart(rep).Render(f); err != nil {
		return VolatilityReport{}, "", fmt.Errorf("渲染波动率报告失败: %w", err)
	}
	return rep, htmlPath, nil
}

// buildVolatilityChart 以 1% 为桶宽画收益直方图。
func buildVolatilityChart(rep VolatilityReport) *charts.Bar {
	const binSize = 0.01
	lowBin := int(math.Floor(rep.Min / binSize))
	highBin := int(math.Floor(rep.Max / binSize))
	counts := make([]int, highBin-lowBin+1)
	for _, r := range rep.Returns {
		idx := int(math.Floor(r/binSize)) - lowBin
		if idx < 0 {
			idx = 0
		}
		if idx >= len(counts) {
			idx = len(counts) - 1
		}
		counts[idx]++
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s 近 %d 根 %s K 线收益分布", rep.Symbol, rep.Bars, rep.Interval),
			Subtitle:   fmt.Sprintf("假设涨幅 %.1f%% → 分位数 %.2f%%", rep.InputReturn*100, rep.InputPercentile*100),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(counts))
	values := make([]opts.BarData, len(counts))
	inputBin := int(math.Floor(rep.InputReturn/binSize)) - lowBin
	for i := range counts {
		xAxis[i] = fmt.Sprintf("%.0f%%", float64(lowBin+i)*binSize*100)
		color := colorEquity
		if i == inputBin {
			color = colorBear
		}
		values[i] = opts.BarData{
			Value:     counts[i],
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("收益率分布", values)
	return bar
}
