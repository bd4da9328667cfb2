package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"quantlab/internal/market"
)

// PolygonSource 基于 Polygon.io /v2/aggs REST，需 API key。
type PolygonSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPolygonSource(base, apiKey string, timeout time.Duration) *PolygonSource {
	if base == "" {
		base = "https://api.polygon.io"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PolygonSource{
		baseURL: base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *PolygonSource) Name() string { return "polygon" }

// polygon 的 multiplier/timespan 写法。
var polygonIntervals = map[string]struct {
	Multiplier int
	Timespan   string
}{
	"1m":  {1, "minute"},
	"5m":  {5, "minute"},
	"15m": {15, "minute"},
	"30m": {30, "minute"},
	"1h":  {1, "hour"},
	"4h":  {4, "hour"},
	"1d":  {1, "day"},
	"1wk": {1, "week"},
}

type polygonAggsResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	NextURL string `json:"next_url"`
	Results []struct {
		T int64   `json:"t"`
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
}

func (p *PolygonSource) Fetch(ctx context.Context, req Request) (market.Series, error) {
	if p.apiKey == "" {
		return market.Series{}, &UnavailableError{Provider: p.Name(), Cause: fmt.Errorf("缺少 API key")}
	}
	native, ok := polygonIntervals[req.Interval.Key]
	if !ok {
		return market.Series{}, &DataError{Provider: p.Name(), Cause: fmt.Errorf("interval %s 不受支持", req.Interval.Key)}
	}
	u, _ := url.Parse(p.baseURL)
	u.Path = fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		url.PathEscape(req.Symbol), native.Multiplier, native.Timespan, req.Start, req.End)
	q := u.Query()
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	q.Set("apiKey", p.apiKey)
	u.RawQuery = q.Encode()

	series := market.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval.Key,
		Start:    req.Start,
		End:      req.End,
	}
	// 大范围分钟线会超过单页 limit，跟随 next_url 翻页直到取完。
	pageURL := u.String()
	for pageURL != "" {
		payload, err := p.fetchPage(ctx, pageURL)
		if err != nil {
			return market.Series{}, err
		}
		for _, r := range payload.Results {
			if r.T < req.Start || r.T > req.End {
				continue
			}
			series.Bars = append(series.Bars, market.Bar{
				TS:     r.T,
				Open:   r.O,
				High:   r.H,
				Low:    r.L,
				Close:  r.C,
				Volume: r.V,
			})
		}
		next, err := p.nextPageURL(payload.NextURL)
		if err != nil {
			return market.Series{}, &DataError{Provider: p.Name(), Cause: err}
		}
		if next == pageURL {
			break
		}
		pageURL = next
	}
	if err := checkFetched(p.Name(), series); err != nil {
		return market.Series{}, err
	}
	return series, nil
}

func (p *PolygonSource) fetchPage(ctx context.Context, pageURL string) (polygonAggsResponse, error) {
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return polygonAggsResponse{}, &UnavailableError{Provider: p.Name(), Cause: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode >= 500:
		return polygonAggsResponse{}, &UnavailableError{Provider: p.Name(), Cause: fmt.Errorf("状态码 %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return polygonAggsResponse{}, &DataError{Provider: p.Name(), Cause: fmt.Errorf("状态码 %d", resp.StatusCode)}
	}
	var payload polygonAggsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return polygonAggsResponse{}, &DataError{Provider: p.Name(), Cause: err}
	}
	if payload.Status == "ERROR" {
		return polygonAggsResponse{}, &DataError{Provider: p.Name(), Cause: fmt.Errorf("%s", payload.Error)}
	}
	return payload, nil
}

// nextPageURL 把 next_url 补上 apiKey（Polygon 返回的续页地址不带凭证）。
func (p *PolygonSource) nextPageURL(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	nu, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("next_url 无法解析: %w", err)
	}
	q := nu.Query()
	q.Set("apiKey", p.apiKey)
	nu.RawQuery = q.Encode()
	return nu.String(), nil
}
