package backtest

import (
	"time"

	"quantlab/internal/strategy"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunRequest 为 HTTP/CLI 提交使用。Profile 与显式 Strategy/Params
// 二选一；都给时显式参数覆盖 profile。
type RunRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Interval       string          `json:"interval"`
	StartTS        int64           `json:"start_ts" binding:"required"`
	EndTS          int64           `json:"end_ts" binding:"required"`
	Profile        string          `json:"profile"`
	Strategy       string          `json:"strategy"`
	Params         strategy.Params `json:"params"`
	InitialCapital float64         `json:"initial_capital"`
	Commission     float64         `json:"commission"`
	Slippage       float64         `json:"slippage"`
	PositionPct    float64         `json:"position_pct"`
}

// RunConfig 记录本次回测的参数快照，便于重放。
type RunConfig struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	StartTS  int64           `json:"start_ts"`
	EndTS    int64           `json:"end_ts"`
	Strategy string          `json:"strategy"`
	Params   strategy.Params `json:"params,omitempty"`
	Engine   Config          `json:"engine"`
}

// Run 表示一次回测任务。
type Run struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Strategy  string    `json:"strategy"`
	Status    string    `json:"status"`
	StartTS   int64     `json:"start_ts"`
	EndTS     int64     `json:"end_ts"`
	Message   string    `json:"message"`
	Config    RunConfig `json:"config"`
	Stats     Stats     `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
