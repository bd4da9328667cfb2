package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"quantlab/internal/market"

	"github.com/tidwall/gjson"
)

// YahooSource 基于 Yahoo Finance chart API（无需 API key）。
type YahooSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooSource(base string, timeout time.Duration) *YahooSource {
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YahooSource{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

var yahooIntervals = map[string]string{
	"1m":  "1m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "60m",
	// Yahoo 无 4h 粒度，走 DataError 让 failover 切到支持 4h 的源。
	"1d":  "1d",
	"1wk": "1wk",
}

func (y *YahooSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	if req.Symbol == "" {
		return market.Series{}, &DataError{Provider: y.Name(), Cause: fmt.Errorf("symbol 不能为空")}
	}
	native, ok := yahooIntervals[req.Interval.Key]
	if !ok {
		return market.Series{}, &DataError{Provider: y.Name(), Cause: fmt.Errorf("interval %s 不受支持", req.Interval.Key)}
	}
	u, _ := url.Parse(y.baseURL)
	u.Path = "/v8/finance/chart/" + url.PathEscape(req.Symbol)
	q := u.Query()
	// Yahoo period2 为开区间，向后放宽一天避免边界截断；窗口归属
	// 仍由下方 [Start, End] 过滤决定，盘中时间戳晚于 End 的那根不收。
	q.Set("period1", strconv.FormatInt(req.Start/1000, 10))
	q.Set("period2", strconv.FormatInt(req.End/1000+86400, 10))
	q.Set("interval", native)
	q.Set("events", "history")
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (quantlab)")
	resp, err := y.client.Do(httpReq)
	if err != nil {
		return market.Series{}, &UnavailableError{Provider: y.Name(), Cause: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.Series{}, &UnavailableError{Provider: y.Name(), Cause: err}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return market.Series{}, &UnavailableError{Provider: y.Name(), Cause: fmt.Errorf("状态码 %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return market.Series{}, &DataError{Provider: y.Name(), Cause: fmt.Errorf("状态码 %d", resp.StatusCode)}
	}

	root := gjson.ParseBytes(body)
	if errNode := root.Get("chart.error"); errNode.Exists() && errNode.Type != gjson.Null {
		return market.Series{}, &DataError{Provider: y.Name(),
			Cause: fmt.Errorf("%s: %s", errNode.Get("code").String(), errNode.Get("description").String())}
	}
	result := root.Get("chart.result.0")
	if !result.Exists() {
		return market.Series{}, &DataError{Provider: y.Name(), Cause: fmt.Errorf("响应缺少 chart.result")}
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	series := market.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval.Key,
		Start:    req.Start,
		End:      req.End,
	}
	for i, tsNode := range timestamps {
		ts := tsNode.Int() * 1000
		if ts < req.Start || ts > req.End {
			continue
		}
		// Yahoo 偶尔在个别下标上给 null（停牌），整根跳过。
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue
		}
		series.Bars = append(series.Bars, market.Bar{
			TS:     ts,
			Open:   at(opens, i),
			High:   at(highs, i),
			Low:    at(lows, i),
			Close:  closes[i].Float(),
			Volume: at(volumes, i),
		})
	}
	if err := checkFetched(y.Name(), series); err != nil {
		return market.Series{}, err
	}
	return series, nil
}

func at(arr []gjson.Result, i int) float64 {
	if i < 0 || i >= len(arr) {
		return 0
	}
	return arr[i].Float()
}
