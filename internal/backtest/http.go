package backtest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"quantlab/internal/data"

	"github.com/gin-gonic/gin"
)

// ReportBuilder 由上层注入，把一次完成的回测渲染为 HTML 报告文件。
type ReportBuilder interface {
	RunReport(ctx context.Context, run Run, trades []Trade, equity []EquityPoint) (string, error)
}

// HTTPServer 提供 Gin 接口，供前端提交回测、查询进度与结果。
type HTTPServer struct {
	addr    string
	data    *data.Service
	sim     *Simulator
	runs    *RunStore
	reports ReportBuilder
	router  *gin.Engine
}

type HTTPConfig struct {
	Addr      string
	Data      *data.Service
	Simulator *Simulator
	Runs      *RunStore
	Reports   ReportBuilder
}

func NewHTTPServer(cfg HTTPConfig) (*HTTPServer, error) {
	if cfg.Data == nil {
		return nil, errors.New("data service 不能为空")
	}
	if cfg.Simulator == nil {
		return nil, errors.New("simulator 不能为空")
	}
	if cfg.Runs == nil {
		return nil, errors.New("run store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		addr:    cfg.Addr,
		data:    cfg.Data,
		sim:     cfg.Simulator,
		runs:    cfg.Runs,
		reports: cfg.Reports,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *HTTPServer) registerRoutes() {
	api := s.router.Group("/api")

	bt := api.Group("/backtest")
	bt.POST("/runs", s.handleRunStart)
	bt.GET("/runs", s.handleRunList)
	bt.GET("/runs/:id", s.handleRunDetail)
	bt.GET("/runs/:id/trades", s.handleRunTrades)
	bt.GET("/runs/:id/equity", s.handleRunEquity)
	bt.GET("/runs/:id/report", s.handleRunReport)

	d := api.Group("/data")
	d.GET("/candles", s.handleCandles)
	d.GET("/manifest", s.handleManifest)
	d.GET("/coverage", s.handleCoverage)
	d.POST("/invalidate", s.handleInvalidate)
}

func (s *HTTPServer) handleRunStart(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.sim.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *HTTPServer) handleRunList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *HTTPServer) handleRunDetail(c *gin.Context) {
	run, ok, err := s.runs.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *HTTPServer) handleRunTrades(c *gin.Context) {
	trades, err := s.runs.TradesForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *HTTPServer) handleRunEquity(c *gin.Context) {
	equity, err := s.runs.EquityForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

func (s *HTTPServer) handleRunReport(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "报告模块未启用"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	run, ok, err := s.runs.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if run.Status != RunStatusDone {
		c.JSON(http.StatusConflict, gin.H{"error": "run 未完成: " + run.Status})
		return
	}
	trades, err := s.runs.TradesForRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	equity, err := s.runs.EquityForRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path, err := s.reports.RunReport(ctx, run, trades, equity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}

func (s *HTTPServer) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	series, err := s.data.CachedBars(c.Request.Context(), symbol, interval, start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": series.Bars})
}

func (s *HTTPServer) handleManifest(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return
	}
	info, err := s.data.ManifestInfo(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

func (s *HTTPServer) handleCoverage(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	report, err := s.data.CoverageInfo(c.Request.Context(), symbol, interval, start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"coverage": report})
}

func (s *HTTPServer) handleInvalidate(c *gin.Context) {
	var req struct {
		Symbol   string `json:"symbol" binding:"required"`
		Interval string `json:"interval" binding:"required"`
		StartTS  int64  `json:"start_ts" binding:"required"`
		EndTS    int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.data.Invalidate(c.Request.Context(), req.Symbol, req.Interval, req.StartTS, req.EndTS); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *HTTPServer) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
