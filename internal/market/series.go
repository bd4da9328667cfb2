package market

import (
	"fmt"
	"sort"
)

// Series 表示单个 symbol@interval 的有序 K 线序列，
// [Start, End] 为该序列声明的有效区间（Unix 毫秒，闭区间）。
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Bars     []Bar  `json:"bars"`
}

// Validate 校验时间戳严格递增且无重复。
func (s Series) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].TS, s.Bars[i].TS
		if cur == prev {
			return fmt.Errorf("series %s@%s: duplicate timestamp %d", s.Symbol, s.Interval, cur)
		}
		if cur < prev {
			return fmt.Errorf("series %s@%s: timestamp %d out of order (prev=%d)", s.Symbol, s.Interval, cur, prev)
		}
	}
	return nil
}

// Trim 返回限定在 [start, end] 窗口内的副本，不修改原序列。
func (s Series) Trim(start, end int64) Series {
	out := Series{Symbol: s.Symbol, Interval: s.Interval, Start: start, End: end}
	lo := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].TS >= start })
	hi := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].TS > end })
	if lo < hi {
		out.Bars = append([]Bar(nil), s.Bars[lo:hi]...)
	}
	return out
}

// Merge 把 fresh 合并进当前序列并返回新序列：按时间排序、去重，
// 时间戳冲突时以 fresh 为准（缓存与新抓取数据不一致时倾向新数据）。
func (s Series) Merge(fresh Series) Series {
	merged := make(map[int64]Bar, len(s.Bars)+len(fresh.Bars))
	for _, b := range s.Bars {
		merged[b.TS] = b
	}
	for _, b := range fresh.Bars {
		merged[b.TS] = b
	}
	keys := make([]int64, 0, len(merged))
	for ts := range merged {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := Series{
		Symbol:   s.Symbol,
		Interval: s.Interval,
		Start:    minNonZero(s.Start, fresh.Start),
		End:      maxInt64(s.End, fresh.End),
		Bars:     make([]Bar, 0, len(keys)),
	}
	for _, ts := range keys {
		out.Bars = append(out.Bars, merged[ts])
	}
	return out
}

// Closes 抽取收盘价序列，供指标计算使用。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Timestamps 抽取时间戳序列。
func (s Series) Timestamps() []int64 {
	out := make([]int64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.TS
	}
	return out
}

func minNonZero(a, b int64) int64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
