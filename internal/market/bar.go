package market

// Bar 是统一后的单根 K 线（OHLCV），时间戳为 Unix 毫秒。
// 各数据源适配器负责把原生字段转换成该格式。
type Bar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
