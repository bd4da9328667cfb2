package backtest

import "time"

// Side 表示持仓方向。
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Trade 记录一笔完整交易。Cost（手续费+滑点）在平仓时一次性收取。
// ForcedExit 标记序列结束时的强制平仓，报表据此与正常出场区分。
type Trade struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	EntryTS    int64   `json:"entry_ts"`
	ExitTS     int64   `json:"exit_ts"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Quantity   float64 `json:"quantity"`
	Cost       float64 `json:"cost"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	HoldingMs  int64   `json:"holding_ms"`
	ForcedExit bool    `json:"forced_exit"`
}

// EquityPoint 是资金曲线上的一个采样点（按 K 线收盘时刻）。
type EquityPoint struct {
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Cash     float64 `json:"cash"`
	Drawdown float64 `json:"drawdown"`
}

// Stats 汇总收益与交易统计。
type Stats struct {
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturn    float64   `json:"total_return"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Sharpe         float64   `json:"sharpe"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	WinRate        float64   `json:"win_rate"`
	AvgWin         float64   `json:"avg_win"`
	AvgLoss        float64   `json:"avg_loss"`
	MaxWin         float64   `json:"max_win"`
	MaxLoss        float64   `json:"max_loss"`
	AvgHoldingMs   int64     `json:"avg_holding_ms"`
	ForcedExits    int       `json:"forced_exits"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Result 是一次回测的只读产物：交易清单 + 资金曲线 + 汇总指标。
// 计算完成后不再修改，生命周期随本次 run 结束。
type Result struct {
	Symbol   string        `json:"symbol"`
	Interval string        `json:"interval"`
	Config   Config        `json:"config"`
	Trades   []Trade       `json:"trades"`
	Equity   []EquityPoint `json:"equity"`
	Stats    Stats         `json:"stats"`
}
