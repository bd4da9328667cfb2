package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"quantlab/internal/backtest"
	"quantlab/internal/indicator"
	"quantlab/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorMAFast        = "#3b82f6"
	colorMASlow        = "#fbbf24"
	colorEquity        = "#22d3ee"
	colorDrawdown      = "#fb7185"

	chartWidthPx     = 1600
	klineHeightPx    = 600
	panelHeightPx    = 300
	snapshotHeightPx = klineHeightPx + 3*panelHeightPx
)

// buildRunPage 把 K 线+均线、权益/回撤、逐笔盈亏拼成一页。
func buildRunPage(run backtest.Run, series market.Series, trades []backtest.Trade, equity []backtest.EquityPoint) (*components.Page, error) {
	if len(series.Bars) == 0 {
		return nil, fmt.Errorf("%s@%s 窗口内无缓存 K 线", run.Symbol, run.Interval)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	kline, err := buildKlineChart(run, series)
	if err != nil {
		return nil, err
	}
	page.AddCharts(kline, buildEquityChart(run, equity), buildDrawdownChart(equity), buildTradePnLChart(trades))
	return page, nil
}

func buildKlineChart(run backtest.Run, series market.Series) (*charts.Kline, error) {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(run.Symbol), run.Interval),
			Subtitle:      fmt.Sprintf("策略 %s | 收益 %.2f%% | 最大回撤 %.2f%%", run.Strategy, run.Stats.TotalReturn*100, run.Stats.MaxDrawdown*100),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildBarAxis(series.Bars)
	klineData := make([]opts.KlineData, 0, len(series.Bars))
	for _, bar := range series.Bars {
		klineData = append(klineData, opts.KlineData{Value: [4]float64{bar.Open, bar.Close, bar.Low, bar.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", klineData)

	overlay, err := buildMAOverlay(run, series, xAxis)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		kline.Overlap(overlay)
	}
	return kline, nil
}

// buildMAOverlay 按 run 参数叠加均线；均线算不出来（窗口比数据长）
// 只影响叠加层，不让整页报告失败。
func buildMAOverlay(run backtest.Run, series market.Series, xAxis []string) (*charts.Line, error) {
	type overlaySpec struct {
		label  string
		window int
		color  string
	}
	params := run.Config.Params
	var specs []overlaySpec
	if fast, ok := params["fast_period"]; ok {
		specs = append(specs, overlaySpec{fmt.Sprintf("SMA%d", fast), fast, colorMAFast})
	}
	if slow, ok := params["slow_period"]; ok {
		specs = append(specs, overlaySpec{fmt.Sprintf("SMA%d", slow), slow, colorMASlow})
	}
	if window, ok := params["window"]; ok {
		specs = append(specs, overlaySpec{fmt.Sprintf("SMA%d", window), window, colorMAFast})
	}
	if len(specs) == 0 {
		specs = append(specs, overlaySpec{"SMA20", 20, colorMAFast})
	}

	line := charts.NewLine()
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.SetXAxis(xAxis)
	added := 0
	for _, sp := range specs {
		ind, err := indicator.Compute(series, indicator.Spec{Name: "sma", Window: sp.window})
		if err != nil {
			continue
		}
		line.AddSeries(sp.label, toLineData(ind.Values), charts.WithLineStyleOpts(opts.LineStyle{Color: sp.color, Width: 2}))
		added++
	}
	if added == 0 {
		return nil, nil
	}
	return line, nil
}

func buildEquityChart(run backtest.Run, equity []backtest.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", panelHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("权益曲线（初始 %.0f）", run.Stats.InitialCapital),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(equity))
	values := make([]opts.LineData, len(equity))
	for i, p := range equity {
		xAxis[i] = formatTS(p.TS)
		values[i] = opts.LineData{Value: round(p.Equity, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", values, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildDrawdownChart(equity []backtest.EquityPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", panelHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "回撤", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary, Formatter: "{value}%"},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(equity))
	values := make([]opts.LineData, len(equity))
	for i, p := range equity {
		xAxis[i] = formatTS(p.TS)
		values[i] = opts.LineData{Value: round(-p.Drawdown*100, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Drawdown", values, charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildTradePnLChart(trades []backtest.Trade) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", panelHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("逐笔盈亏（%d 笔）", len(trades)), Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(trades))
	values := make([]opts.BarData, len(trades))
	for i, t := range trades {
		xAxis[i] = formatTS(t.ExitTS)
		color := colorBear
		if t.PnL >= 0 {
			color = colorBull
		}
		values[i] = opts.BarData{
			Value:     round(t.PnL, 2),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("PnL", values)
	return bar
}

func buildBarAxis(bars []market.Bar) []string {
	x := make([]string, len(bars))
	for i, bar := range bars {
		x[i] = formatTS(bar.TS)
	}
	return x
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func toLineData(values []float64) []opts.LineData {
	line := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(v, 4)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
