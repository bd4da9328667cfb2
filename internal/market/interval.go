package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Interval 描述采样周期（内部 key + duration）。
// 数据源各自的 interval 写法由适配器映射。
type Interval struct {
	Key      string
	Duration time.Duration
}

var supportedIntervals = map[string]Interval{
	"1m":  {Key: "1m", Duration: time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
	"1wk": {Key: "1wk", Duration: 7 * 24 * time.Hour},
}

// ParseInterval 返回标准化周期定义。
func ParseInterval(input string) (Interval, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	iv, ok := supportedIntervals[key]
	if !ok {
		return Interval{}, fmt.Errorf("不支持的周期: %s", input)
	}
	return iv, nil
}

// SupportedIntervals 返回所有支持的 key（排序后）。
func SupportedIntervals() []string {
	keys := make([]string, 0, len(supportedIntervals))
	for k := range supportedIntervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (iv Interval) Millis() int64 {
	return iv.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 将输入的毫秒时间对齐到周期网格，保证 start<=end。
func (iv Interval) AlignRange(start, end int64) (int64, int64) {
	step := iv.Millis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}
