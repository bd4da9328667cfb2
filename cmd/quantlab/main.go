package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"quantlab/internal/app"
	"quantlab/internal/backtest"
	qlcfg "quantlab/internal/config"
	"quantlab/internal/logger"
	"quantlab/internal/strategy"
)

func main() {
	cfgPath := os.Getenv("QUANTLAB_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := qlcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，profiles=%s）", cfg.App.Env, cfg.App.ProfilesPath)

	mode := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode = args[0]
		args = args[1:]
	}

	switch mode {
	case "serve":
		runServe(cfg)
	case "run":
		runOnce(cfg, args)
	case "vol":
		runVolatility(cfg, args)
	default:
		log.Fatalf("未知模式 %q（支持 serve / run / vol）", mode)
	}
}

// runServe 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅退出。
func runServe(cfg *qlcfg.Config) {
	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := a.Serve(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

// runOnce 单发回测：拉数据、跑策略、打印摘要。
func runOnce(cfg *qlcfg.Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	symbol := fs.String("symbol", "", "标的代码，如 AAPL")
	interval := fs.String("interval", "", "K 线周期（默认取配置）")
	start := fs.String("start", "", "起始日期 YYYY-MM-DD")
	end := fs.String("end", "", "结束日期 YYYY-MM-DD")
	profile := fs.String("profile", "", "策略 profile 名")
	strat := fs.String("strategy", "", "策略名（覆盖 profile）")
	fast := fs.Int("fast", 0, "快线窗口（ma_cross）")
	slow := fs.Int("slow", 0, "慢线窗口（ma_cross）")
	window := fs.Int("window", 0, "均值窗口（mean_reversion）")
	_ = fs.Parse(args)

	startTS, endTS, err := parseWindow(*start, *end)
	if err != nil {
		log.Fatalf("时间窗口非法: %v", err)
	}
	params := strategy.Params{}
	if *fast > 0 {
		params["fast_period"] = *fast
	}
	if *slow > 0 {
		params["slow_period"] = *slow
	}
	if *window > 0 {
		params["window"] = *window
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer a.Close()

	_, summary, err := a.RunOnce(context.Background(), backtest.RunRequest{
		Symbol:   *symbol,
		Interval: *interval,
		StartTS:  startTS,
		EndTS:    endTS,
		Profile:  *profile,
		Strategy: *strat,
		Params:   params,
	})
	if err != nil {
		log.Fatalf("回测失败: %v", err)
	}
	fmt.Print(summary)
}

// runVolatility 波动率分位分析：给定假设涨幅，输出历史分位与直方图页。
func runVolatility(cfg *qlcfg.Config, args []string) {
	fs := flag.NewFlagSet("vol", flag.ExitOnError)
	symbol := fs.String("symbol", "", "标的代码")
	interval := fs.String("interval", "1d", "K 线周期")
	start := fs.String("start", "", "起始日期 YYYY-MM-DD")
	end := fs.String("end", "", "结束日期 YYYY-MM-DD")
	inputReturn := fs.Float64("return", 0.05, "假设涨幅，如 0.06 表示 6%")
	_ = fs.Parse(args)

	startTS, endTS, err := parseWindow(*start, *end)
	if err != nil {
		log.Fatalf("时间窗口非法: %v", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	defer a.Close()

	rep, path, err := a.Volatility(context.Background(), *symbol, *interval, startTS, endTS, *inputReturn)
	if err != nil {
		log.Fatalf("波动率分析失败: %v", err)
	}
	fmt.Println(rep.Summary())
	fmt.Printf("报告已写入 %s\n", path)
}

// parseWindow 把 YYYY-MM-DD 区间转为毫秒时间戳；end 为空取今天。
func parseWindow(start, end string) (int64, int64, error) {
	if start == "" {
		return 0, 0, fmt.Errorf("必须指定 -start")
	}
	from, err := time.ParseInLocation("2006-01-02", start, time.UTC)
	if err != nil {
		return 0, 0, err
	}
	to := time.Now().UTC()
	if end != "" {
		to, err = time.ParseInLocation("2006-01-02", end, time.UTC)
		if err != nil {
			return 0, 0, err
		}
	}
	if !to.After(from) {
		return 0, 0, fmt.Errorf("end 必须晚于 start")
	}
	return from.UnixMilli(), to.UnixMilli(), nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
