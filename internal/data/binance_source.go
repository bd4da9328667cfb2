package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"quantlab/internal/market"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource 基于 go-binance SDK 现货 klines，覆盖加密品种。
type BinanceSource struct {
	client   *binance.Client
	maxBatch int
}

func NewBinanceSource(baseURL string) *BinanceSource {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	client.HTTPClient.Timeout = 15 * time.Second
	return &BinanceSource{client: client, maxBatch: 1000}
}

func (b *BinanceSource) Name() string { return "binance" }

var binanceIntervals = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1h",
	"4h":  "4h",
	"1d":  "1d",
	"1wk": "1w",
}

func (b *BinanceSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	native, ok := binanceIntervals[req.Interval.Key]
	if !ok {
		return market.Series{}, &DataError{Provider: b.Name(), Cause: fmt.Errorf("interval %s 不受支持", req.Interval.Key)}
	}
	series := market.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval.Key,
		Start:    req.Start,
		End:      req.End,
	}
	step := req.Interval.Millis()
	cursor := req.Start
	for cursor <= req.End {
		klines, err := b.client.NewKlinesService().
			Symbol(req.Symbol).
			Interval(native).
			StartTime(cursor).
			EndTime(req.End).
			Limit(b.maxBatch).
			Do(ctx)
		if err != nil {
			return market.Series{}, &UnavailableError{Provider: b.Name(), Cause: err}
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.OpenTime < req.Start || k.OpenTime > req.End {
				continue
			}
			series.Bars = append(series.Bars, market.Bar{
				TS:     k.OpenTime,
				Open:   parseFloat(k.Open),
				High:   parseFloat(k.High),
				Low:    parseFloat(k.Low),
				Close:  parseFloat(k.Close),
				Volume: parseFloat(k.Volume),
			})
		}
		last := klines[len(klines)-1].OpenTime
		if last+step <= cursor {
			break
		}
		cursor = last + step
		if len(klines) < b.maxBatch {
			break
		}
	}
	if err := checkFetched(b.Name(), series); err != nil {
		return market.Series{}, err
	}
	return series, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
