package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"quantdesk/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKlines serves hourly bars ending at lastOpen, honouring limit and endTime.
func fakeKlines(t *testing.T, lastOpen int64, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := lastOpen * 1000
		if v := r.URL.Query().Get("endTime"); v != "" {
			ms, _ := strconv.ParseInt(v, 10, 64)
			end = ms - ms%3_600_000
		}
		rows := make([]string, 0, limit)
		for i := limit - 1; i >= 0; i-- {
			open := end - int64(i)*3_600_000
			rows = append(rows, fmt.Sprintf(`[%d,"1.0","2.0","0.5","1.5","10",%d,"0",1,"0","0","0"]`, open, open+3_599_999))
		}
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
}

func TestFetchCandlesPagesBackwards(t *testing.T) {
	var calls atomic.Int32
	lastOpen := int64(1_700_000_000 - 1_700_000_000%3600)
	srv := fakeKlines(t, lastOpen, &calls)
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL, HTTPTimeout: time.Second})
	require.NoError(t, err)
	src.now = func() time.Time { return time.Unix(lastOpen+1800, 0) }

	got, err := src.FetchCandles(context.Background(), "btc", "1h", 2000)
	require.NoError(t, err)
	require.Len(t, got, 2000)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, lastOpen-3600, got[len(got)-1].Time, "in-progress bar dropped")
	for i := 1; i < len(got); i++ {
		require.Equal(t, int64(3600), got[i].Time-got[i-1].Time)
	}
	assert.Equal(t, 1.5, got[0].Close)
}

func TestFetchCandlesWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"code":-1,"msg":"nope"}`))
	}))
	defer srv.Close()
	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)
	_, err = src.FetchCandles(context.Background(), "BTC", "1h", 10)
	var fe *market.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "binance", fe.Provider)
}

func TestExchangeSymbol(t *testing.T) {
	src, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", src.ExchangeSymbol("btc"))
	assert.Equal(t, "ETHUSDC", src.ExchangeSymbol("eth/usdc"))
	assert.Equal(t, "SOLUSDT", src.ExchangeSymbol("SOLUSDT"))
}
