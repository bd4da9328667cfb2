package backtest

import (
	"fmt"

	"quantlab/internal/market"
	"quantlab/internal/strategy"
)

// Config 是回测引擎参数。Commission/Slippage 为成交额比例，
// 统一在平仓时收取；PositionPct 为每笔动用资金比例（0~1]。
type Config struct {
	InitialCapital float64 `json:"initial_capital"`
	Commission     float64 `json:"commission"`
	Slippage       float64 `json:"slippage"`
	PositionPct    float64 `json:"position_pct"`
	AllowShort     bool    `json:"allow_short"`
}

func (c Config) withDefaults() Config {
	if c.InitialCapital == 0 {
		c.InitialCapital = 100000
	}
	if c.PositionPct == 0 {
		c.PositionPct = 1
	}
	return c
}

func (c Config) validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital=%v 必须为正", c.InitialCapital)
	}
	if c.Commission < 0 || c.Slippage < 0 {
		return fmt.Errorf("commission/slippage 不允许为负")
	}
	if c.PositionPct <= 0 || c.PositionPct > 1 {
		return fmt.Errorf("position_pct=%v 必须在 (0,1] 内", c.PositionPct)
	}
	return nil
}

// Engine 把信号序列推演为持仓与交易。纯函数：
// 同样的 (Series, 信号, Config) 必然得到同样的 Result，无跨 run 状态。
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// 持仓状态机：flat --enter--> long/short --exit--> flat。
type position struct {
	side       Side
	entryTS    int64
	entryPrice float64
	qty        float64
}

// Run 按时间顺序消费信号。信号在下一根 K 线的开盘价成交
// （不用信号 K 线的收盘价，避免前视偏差）；与当前持仓状态相同的
// 信号为 no-op；序列结束时仍有持仓则按最后一根收盘价强制平仓。
func (e *Engine) Run(bars market.Series, signals []strategy.Signal) (Result, error) {
	if err := bars.Validate(); err != nil {
		return Result{}, err
	}
	if len(bars.Bars) < 2 {
		return Result{}, fmt.Errorf("%s@%s: K 线不足（%d 根），无法回测", bars.Symbol, bars.Interval, len(bars.Bars))
	}
	if len(signals) != len(bars.Bars) {
		return Result{}, fmt.Errorf("%s@%s: 信号数 %d 与 K 线数 %d 不一致", bars.Symbol, bars.Interval, len(signals), len(bars.Bars))
	}

	result := Result{
		Symbol:   bars.Symbol,
		Interval: bars.Interval,
		Config:   e.cfg,
	}
	cash := e.cfg.InitialCapital
	var pos *position
	peak := cash

	markEquity := func(ts int64, price float64) {
		equity := cash
		if pos != nil {
			equity += unrealized(pos, price)
		}
		if equity > peak {
			peak = equity
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = (peak - equity) / peak
		}
		result.Equity = append(result.Equity, EquityPoint{TS: ts, Equity: equity, Cash: cash, Drawdown: drawdown})
	}

	for i, bar := range bars.Bars {
		// 当前 bar 的成交来自上一根 K 线的信号。
		if i > 0 {
			switch sig := signals[i-1]; sig {
			case strategy.EnterLong:
				if pos == nil {
					pos = e.open(SideLong, bar, cash)
				}
			case strategy.ExitLong:
				if pos != nil && pos.side == SideLong {
					cash += e.close(&result, pos, bar.TS, bar.Open, false)
					pos = nil
				}
			case strategy.EnterShort:
				if e.cfg.AllowShort && pos == nil {
					pos = e.open(SideShort, bar, cash)
				}
			case strategy.ExitShort:
				if pos != nil && pos.side == SideShort {
					cash += e.close(&result, pos, bar.TS, bar.Open, false)
					pos = nil
				}
			}
		}
		if i == len(bars.Bars)-1 && pos != nil {
			// 强平点：最后一根收盘价。
			cash += e.close(&result, pos, bar.TS, bar.Close, true)
			pos = nil
		}
		markEquity(bar.TS, bar.Close)
	}

	result.Stats = computeStats(e.cfg, result.Trades, result.Equity, bars.Interval)
	return result, nil
}

func (e *Engine) open(side Side, bar market.Bar, cash float64) *position {
	if bar.Open <= 0 {
		return nil
	}
	notional := cash * e.cfg.PositionPct
	if notional <= 0 {
		return nil
	}
	return &position{
		side:       side,
		entryTS:    bar.TS,
		entryPrice: bar.Open,
		qty:        notional / bar.Open,
	}
}

// close 结算一笔交易并追加到清单，返回现金变动（即含成本的 P&L）。
func (e *Engine) close(result *Result, pos *position, ts int64, price float64, forced bool) float64 {
	gross := unrealized(pos, price)
	cost := (pos.entryPrice + price) * pos.qty * (e.cfg.Commission + e.cfg.Slippage)
	pnl := gross - cost
	entryNotional := pos.entryPrice * pos.qty
	trade := Trade{
		Symbol:     result.Symbol,
		Side:       pos.side,
		EntryTS:    pos.entryTS,
		ExitTS:     ts,
		EntryPrice: pos.entryPrice,
		ExitPrice:  price,
		Quantity:   pos.qty,
		Cost:       cost,
		PnL:        pnl,
		HoldingMs:  ts - pos.entryTS,
		ForcedExit: forced,
	}
	if entryNotional > 0 {
		trade.PnLPct = pnl / entryNotional
	}
	result.Trades = append(result.Trades, trade)
	return pnl
}

func unrealized(pos *position, price float64) float64 {
	if pos.side == SideShort {
		return (pos.entryPrice - price) * pos.qty
	}
	return (price - pos.entryPrice) * pos.qty
}
