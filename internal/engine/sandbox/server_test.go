package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T, provider market.Provider) (*Server, *marketcache.Cache, *engine.Client) {
	t.Helper()
	cache := marketcache.New(provider)
	srv, err := NewServer(Config{Cache: cache, StepDelay: time.Millisecond})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	client, err := engine.NewClient(engine.ClientConfig{APIURL: ts.URL})
	require.NoError(t, err)
	return srv, cache, client
}

func TestSandboxMatchesLocalSimulator(t *testing.T) {
	provider := &market.SyntheticProvider{
		Gen: market.NewSyntheticGenerator(11),
		Now: func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
	_, cache, client := newSandbox(t, provider)

	o := engine.NewOrchestrator(client, engine.WithPollInterval(time.Millisecond))
	st := o.RunLeanBacktest(context.Background(), engine.Payload{Asset: "ETH", Timeframe: "1h"})
	require.NotEmpty(t, st.JobID)
	o.Wait()

	st = o.State()
	require.Equal(t, engine.StatusCompleted, st.Status, st.Error)
	require.NotNil(t, st.Result)
	assert.Contains(t, st.Logs, "loaded 2000 candles")
	assert.Equal(t, backtest.SourceRemote, st.Result.Source)

	candles, err := cache.EnsureWindow(context.Background(), "ETH", "1h", 2000)
	require.NoError(t, err)
	local := backtest.RunBacktest(candles)
	assert.Equal(t, local.TotalTrades, st.Result.TotalTrades)
	assert.InDelta(t, local.TotalProfit, st.Result.TotalProfit, 1e-6)
	assert.Equal(t, local.Trades, st.Result.Trades)
	assert.Equal(t, local.EquityCurve, st.Result.EquityCurve)
	assert.Equal(t, "0.00", st.Result.RawStatistics["Total Fees"])
}

func TestSandboxDataFailure(t *testing.T) {
	failing := market.ProviderFunc(func(context.Context, string, string, int) ([]market.Candle, error) {
		return nil, errors.New("exchange offline")
	})
	_, _, client := newSandbox(t, failing)

	o := engine.NewOrchestrator(client, engine.WithPollInterval(time.Millisecond))
	o.RunLeanBacktest(context.Background(), engine.Payload{Asset: "BTC", Timeframe: "1h"})
	o.Wait()

	st := o.State()
	assert.Equal(t, engine.StatusError, st.Status)
	require.NotNil(t, st.ErrorMeta)
	assert.Equal(t, "data", st.ErrorMeta.Phase)
	assert.Equal(t, "DataError", st.ErrorMeta.Type)
	assert.Contains(t, st.Error, "exchange offline")
	assert.Nil(t, st.Result)
}

func TestSandboxRejectsBadPayloadAndUnknownJobs(t *testing.T) {
	srv, _, client := newSandbox(t, &market.SyntheticProvider{})
	_, err := client.SubmitJob(context.Background(), engine.Payload{Timeframe: "1h"})
	assert.ErrorContains(t, err, "400")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope/result", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterRange(t *testing.T) {
	candles := []market.Candle{{Time: 86400}, {Time: 2 * 86400}, {Time: 3 * 86400}}
	got, err := filterRange(candles, "1970-01-02", "1970-01-03T00:00:00Z")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	_, err = filterRange(candles, "yesterday", "")
	assert.Error(t, err)
}
