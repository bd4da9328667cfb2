package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"quantlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yahooChartBody(timestamps []int64, closes []float64) string {
	var ts, vals []string
	for i := range timestamps {
		ts = append(ts, fmt.Sprintf("%d", timestamps[i]))
		vals = append(vals, fmt.Sprintf("%g", closes[i]))
	}
	quote := fmt.Sprintf(`{"open":[%[1]s],"high":[%[1]s],"low":[%[1]s],"close":[%[1]s],"volume":[%[1]s]}`,
		strings.Join(vals, ","))
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[%s]}}],"error":null}}`,
		strings.Join(ts, ","), quote)
}

func TestYahooRejectsFourHourInterval(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, yahooChartBody([]int64{0}, []float64{100}))
	}))
	defer srv.Close()

	iv, err := market.ParseInterval("4h")
	require.NoError(t, err)
	src := NewYahooSource(srv.URL, 0)
	_, err = src.Fetch(context.Background(), Request{Symbol: "AAPL", Interval: iv, Start: 0, End: 9 * iv.Millis()})

	// 没有 4h 粒度：本地直接拒绝，不能拿 60m 冒充 4h 入缓存。
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Contains(t, dataErr.Error(), "不受支持")
	assert.EqualValues(t, 0, hits.Load())
}

func TestAcquireFourHourFailsOverPastYahoo(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, yahooChartBody([]int64{0}, []float64{100}))
	}))
	defer srv.Close()

	yahoo := NewYahooSource(srv.URL, 0)
	backup := okSource("binance")
	svc := newTestService(t, yahoo, backup)

	fourH := int64(4 * 3_600_000)
	series, err := svc.Acquire(context.Background(), "AAPL", "4h", 0, 9*fourH)
	require.NoError(t, err)
	assert.Len(t, series.Bars, 10)
	assert.Equal(t, 1, backup.Calls())
	assert.EqualValues(t, 0, hits.Load())
}

// 日线在交易时段开盘时刻打戳，End 当日盘中时间戳超出窗口的
// 那根按窗口外处理（对齐 period2 开区间语义）。
func TestYahooDropsBarStampedAfterEnd(t *testing.T) {
	sessionOpen := int64(13*3600 + 1800) // 13:30 UTC，秒
	daySec := int64(86_400)
	var gotPeriod2 string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPeriod2 = r.URL.Query().Get("period2")
		fmt.Fprint(w, yahooChartBody(
			[]int64{sessionOpen, daySec + sessionOpen, 2*daySec + sessionOpen},
			[]float64{100, 101, 102}))
	}))
	defer srv.Close()

	iv, err := market.ParseInterval("1d")
	require.NoError(t, err)
	src := NewYahooSource(srv.URL, 0)
	series, err := src.Fetch(context.Background(), Request{Symbol: "AAPL", Interval: iv, Start: 0, End: 2 * dayMs})
	require.NoError(t, err)

	require.Len(t, series.Bars, 2)
	assert.Equal(t, sessionOpen*1000, series.Bars[0].TS)
	assert.Equal(t, (daySec+sessionOpen)*1000, series.Bars[1].TS)
	// period2 向后放宽一天，截断仍由本地过滤负责。
	assert.Equal(t, fmt.Sprintf("%d", 2*daySec+daySec), gotPeriod2)
}

func TestYahooErrorNodeBecomesDataError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	iv, err := market.ParseInterval("1d")
	require.NoError(t, err)
	src := NewYahooSource(srv.URL, 0)
	_, err = src.Fetch(context.Background(), Request{Symbol: "NOPE", Interval: iv, Start: 0, End: dayMs})

	var dataErr *DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Contains(t, dataErr.Error(), "Not Found")
}
