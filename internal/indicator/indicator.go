package indicator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"quantlab/internal/market"

	"github.com/markcheno/go-talib"
)

// 调用方参数错误，不可重试。
var (
	ErrUnknownIndicator = errors.New("unknown indicator")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Spec 指定指标名称与参数。Window 适用于 sma/ema/rsi/bbands，
// Fast/Slow/Signal 适用于 macd。
type Spec struct {
	Name   string  `json:"name"`
	Window int     `json:"window,omitempty"`
	Fast   int     `json:"fast,omitempty"`
	Slow   int     `json:"slow,omitempty"`
	Signal int     `json:"signal,omitempty"`
	NbDev  float64 `json:"nb_dev,omitempty"`
}

// Series 是与输入 K 线按时间戳对齐的指标序列。
// 预热期（回看不足）的值为 NaN，绝不用 0 或外推值顶替。
type Series struct {
	Name   string    `json:"name"`
	TS     []int64   `json:"ts"`
	Values []float64 `json:"values"`
}

// Defined 判断下标 i 处是否已有定义值。
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s.Values) && !math.IsNaN(s.Values[i])
}

// Compute 计算单个指标序列。不修改输入；同样输入必然得到同样输出。
func Compute(bars market.Series, spec Spec) (Series, error) {
	name := strings.ToLower(strings.TrimSpace(spec.Name))
	closes := bars.Closes()
	ts := bars.Timestamps()

	switch name {
	case "sma":
		if err := checkWindow(spec.Window, len(closes)); err != nil {
			return Series{}, err
		}
		return masked(name, ts, talib.Sma(closes, spec.Window), spec.Window-1), nil
	case "ema":
		if err := checkWindow(spec.Window, len(closes)); err != nil {
			return Series{}, err
		}
		return masked(name, ts, talib.Ema(closes, spec.Window), spec.Window-1), nil
	case "rsi":
		if err := checkWindow(spec.Window, len(closes)); err != nil {
			return Series{}, err
		}
		return masked(name, ts, talib.Rsi(closes, spec.Window), spec.Window), nil
	case "macd":
		fast, slow, signal := spec.Fast, spec.Slow, spec.Signal
		if fast <= 0 {
			fast = 12
		}
		if slow <= 0 {
			slow = 26
		}
		if signal <= 0 {
			signal = 9
		}
		if fast >= slow {
			return Series{}, fmt.Errorf("%w: macd fast=%d 必须小于 slow=%d", ErrInvalidParameter, fast, slow)
		}
		if slow > len(closes) {
			return Series{}, fmt.Errorf("%w: macd slow=%d 超过序列长度 %d", ErrInvalidParameter, slow, len(closes))
		}
		line, _, _ := talib.Macd(closes, fast, slow, signal)
		return masked(name, ts, line, slow-1), nil
	case "bbands_upper", "bbands_middle", "bbands_lower":
		if err := checkWindow(spec.Window, len(closes)); err != nil {
			return Series{}, err
		}
		nbDev := spec.NbDev
		if nbDev <= 0 {
			nbDev = 2
		}
		upper, middle, lower := talib.BBands(closes, spec.Window, nbDev, nbDev, talib.SMA)
		switch name {
		case "bbands_upper":
			return masked(name, ts, upper, spec.Window-1), nil
		case "bbands_lower":
			return masked(name, ts, lower, spec.Window-1), nil
		default:
			return masked(name, ts, middle, spec.Window-1), nil
		}
	default:
		return Series{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, spec.Name)
	}
}

func checkWindow(window, n int) error {
	if window <= 0 {
		return fmt.Errorf("%w: window=%d 必须为正", ErrInvalidParameter, window)
	}
	if window > n {
		return fmt.Errorf("%w: window=%d 超过序列长度 %d", ErrInvalidParameter, window, n)
	}
	return nil
}

// masked 把 talib 预热段输出（0 填充）统一改成 NaN。
func masked(name string, ts []int64, values []float64, warmup int) Series {
	out := Series{Name: name, TS: ts, Values: append([]float64(nil), values...)}
	if warmup > len(out.Values) {
		warmup = len(out.Values)
	}
	for i := 0; i < warmup; i++ {
		out.Values[i] = math.NaN()
	}
	return out
}
