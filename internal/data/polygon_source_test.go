package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quantlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygonBars(start int64, step int64, closes ...float64) string {
	out := ""
	for i, c := range closes {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"t":%d,"o":%[2]g,"h":%[2]g,"l":%[2]g,"c":%[2]g,"v":10}`, start+int64(i)*step, c)
	}
	return out
}

// 超出单页 limit 的区间必须沿 next_url 翻页取完，
// 不允许截断后当成完整数据入缓存。
func TestPolygonFollowsNextURL(t *testing.T) {
	const minuteMs = int64(60_000)
	var requests int
	var cursorKey string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("cursor") == "" {
			next := srv.URL + r.URL.Path + "?cursor=p2"
			fmt.Fprintf(w, `{"status":"OK","next_url":"%s","results":[%s]}`,
				next, polygonBars(0, minuteMs, 100, 101))
			return
		}
		cursorKey = r.URL.Query().Get("apiKey")
		fmt.Fprintf(w, `{"status":"OK","results":[%s]}`, polygonBars(2*minuteMs, minuteMs, 102, 103))
	})

	iv, err := market.ParseInterval("1m")
	require.NoError(t, err)
	src := NewPolygonSource(srv.URL, "test-key", 0)
	series, err := src.Fetch(context.Background(), Request{Symbol: "AAPL", Interval: iv, Start: 0, End: 3 * minuteMs})
	require.NoError(t, err)

	require.Len(t, series.Bars, 4)
	assert.Equal(t, 3*minuteMs, series.Bars[3].TS)
	assert.Equal(t, 103.0, series.Bars[3].Close)
	assert.Equal(t, 2, requests)
	// next_url 不带凭证，续页请求要补回 apiKey。
	assert.Equal(t, "test-key", cursorKey)
}

func TestPolygonSinglePageStopsAfterOneRequest(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		fmt.Fprintf(w, `{"status":"OK","results":[%s]}`, polygonBars(0, dayMs, 100, 101, 102))
	}))
	defer srv.Close()

	iv, err := market.ParseInterval("1d")
	require.NoError(t, err)
	src := NewPolygonSource(srv.URL, "test-key", 0)
	series, err := src.Fetch(context.Background(), Request{Symbol: "AAPL", Interval: iv, Start: 0, End: 2 * dayMs})
	require.NoError(t, err)
	assert.Len(t, series.Bars, 3)
	assert.Equal(t, 1, requests)
}
