package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"
	"quantdesk/internal/store/jobs"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnd = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func deterministicProvider() market.Provider {
	return market.ProviderFunc(func(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
		return market.NewSyntheticGenerator(7).Generate(asset, timeframe, limit, testEnd), nil
	})
}

func failingProvider() market.Provider {
	return market.ProviderFunc(func(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
		return nil, market.NewFetchError("func", asset, timeframe, errors.New("connection refused"))
	})
}

type completedEngine struct{}

func (completedEngine) SubmitJob(ctx context.Context, p engine.Payload) (engine.Job, error) {
	return engine.Job{ID: "job-1", Status: "completed", Logs: []string{"done"}}, nil
}

func (completedEngine) GetJobStatus(ctx context.Context, id string) (engine.Job, error) {
	return engine.Job{ID: id, Status: "completed"}, nil
}

func (completedEngine) GetJobResult(ctx context.Context, id string) (engine.ResultResponse, error) {
	raw := `{"trades":[{"id":"T1","entryTime":1,"exitTime":2,"entryPrice":1,"exitPrice":1.1,"direction":"long","profit":100}],
		"winRate":1,"totalProfit":100,"equityCurve":[{"time":1,"value":10000},{"time":2,"value":10100}]}`
	return engine.ResultResponse{Status: "completed", Result: json.RawMessage(raw)}, nil
}

type fakeHistory struct{ records []jobs.Record }

func (f fakeHistory) List(ctx context.Context, limit int) ([]jobs.Record, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Cache == nil {
		cfg.Cache = marketcache.New(deterministicProvider(), marketcache.WithMaxCandles(1000))
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresCache(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestCandlesEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/candles?asset=btc&timeframe=1h&limit=50", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Asset   string          `json:"asset"`
		Count   int             `json:"count"`
		Candles []market.Candle `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC", body.Asset)
	assert.Equal(t, 50, body.Count)
	assert.Len(t, body.Candles, 50)

	rec = do(t, s, http.MethodGet, "/api/candles?timeframe=1h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/candles?asset=btc&timeframe=fortnight", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats marketcache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, 1, stats.Entries)
}

func TestCandlesEndpointFetchFailure(t *testing.T) {
	s := newTestServer(t, Config{Cache: marketcache.New(failingProvider())})
	rec := do(t, s, http.MethodGet, "/api/candles?asset=eth&timeframe=15m", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestViewEndpointEscalates(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := do(t, s, http.MethodGet, "/api/view?asset=btc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/view?consumer=nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/view?consumer=chart&asset=btc&timeframe=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first viewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, 600, first.Count)
	assert.False(t, first.Synthetic)

	l, ok := s.lookupLoader("chart")
	require.True(t, ok)
	l.Wait()

	rec = do(t, s, http.MethodGet, "/api/view?consumer=chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current viewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.Equal(t, 1000, current.Count)
	assert.True(t, current.Escalated)
}

func TestViewEndpointSyntheticFallback(t *testing.T) {
	s := newTestServer(t, Config{Cache: marketcache.New(failingProvider())})
	rec := do(t, s, http.MethodGet, "/api/view?consumer=chart&asset=sol&timeframe=4h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v viewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Synthetic)
	assert.Equal(t, 400, v.Count)
	assert.Contains(t, v.Error, "connection refused")
}

func TestLocalBacktestMatchesSimulator(t *testing.T) {
	s := newTestServer(t, Config{})
	rec := do(t, s, http.MethodPost, "/api/backtest/local", map[string]any{"asset": "eth", "timeframe": "1h", "limit": 300})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Result backtest.Result `json:"result"`
		Bars   int             `json:"bars"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	want := backtest.RunBacktest(market.NewSyntheticGenerator(7).Generate("ETH", "1h", 300, testEnd))
	assert.Equal(t, 300, body.Bars)
	assert.Equal(t, want.TotalTrades, body.Result.TotalTrades)
	assert.InDelta(t, want.TotalProfit, body.Result.TotalProfit, 1e-6)
	assert.Equal(t, backtest.SourceLocal, body.Result.Source)
}

func TestRemoteEndpointsWithoutEngine(t *testing.T) {
	s := newTestServer(t, Config{})
	for _, target := range []string{"/api/backtest/remote", "/api/backtest/remote/report"} {
		rec := do(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	rec := do(t, s, http.MethodGet, "/api/jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRemoteLifecycle(t *testing.T) {
	orch := engine.NewOrchestrator(completedEngine{}, engine.WithPollInterval(10*time.Millisecond))
	s := newTestServer(t, Config{Orchestrator: orch})

	rec := do(t, s, http.MethodGet, "/api/backtest/remote/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/backtest/remote", engine.Payload{Asset: "BTC", Timeframe: "1h"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var st engine.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, engine.StatusCompleted, st.Status)
	require.NotNil(t, st.Result)
	assert.Equal(t, 1, st.Result.TotalTrades)

	rec = do(t, s, http.MethodGet, "/api/backtest/remote/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "job-1")

	rec = do(t, s, http.MethodDelete, "/api/backtest/remote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, engine.StatusIdle, st.Status)

	rec = do(t, s, http.MethodPost, "/api/backtest/remote", engine.Payload{Timeframe: "1h"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRemoteStream(t *testing.T) {
	orch := engine.NewOrchestrator(completedEngine{}, engine.WithPollInterval(10*time.Millisecond))
	s := newTestServer(t, Config{Orchestrator: orch})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/backtest/remote/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var st engine.State
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, engine.StatusIdle, st.Status)

	go orch.RunLeanBacktest(context.Background(), engine.Payload{Asset: "BTC", Timeframe: "1h"})
	for st.Status != engine.StatusCompleted || st.Result == nil {
		require.NoError(t, conn.ReadJSON(&st))
	}
	assert.Equal(t, "job-1", st.JobID)
}

func TestJobsEndpoint(t *testing.T) {
	hist := fakeHistory{records: []jobs.Record{
		{ID: "a", Status: "completed"},
		{ID: "b", Status: "error"},
		{ID: "c", Status: "completed"},
	}}
	s := newTestServer(t, Config{Jobs: hist})

	rec := do(t, s, http.MethodGet, "/api/jobs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, "c", body.Jobs[1].ID)

	rec = do(t, s, http.MethodGet, "/api/jobs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForError(t *testing.T) {
	open := &market.FetchError{Provider: "p", Err: market.ErrCircuitOpen}
	assert.Equal(t, http.StatusServiceUnavailable, statusForError(open))
	assert.Equal(t, http.StatusBadGateway, statusForError(&market.FetchError{Err: errors.New("x")}))
	assert.Equal(t, http.StatusGatewayTimeout, statusForError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, statusForError(errors.New("boom")))
}
