package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordUpsertsJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cash := 1000.0
	p := engine.Payload{Asset: "btc", Timeframe: "1h", Cash: &cash}

	require.NoError(t, s.Record(ctx, p, engine.State{JobID: "j1", Status: engine.StatusRunning, Logs: []string{"a"}}))
	first, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "running", first.Status)
	assert.Equal(t, "BTC", first.Asset)
	assert.JSONEq(t, `["a"]`, string(first.Logs))

	time.Sleep(5 * time.Millisecond)
	res := backtest.Result{TotalTrades: 2, TotalProfit: 12.5, Source: backtest.SourceRemote, Trades: []backtest.Trade{}, EquityCurve: []backtest.EquityPoint{}}
	require.NoError(t, s.Record(ctx, p, engine.State{JobID: "j1", Status: engine.StatusCompleted, Logs: []string{"a", "b"}, Result: &res}))

	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 2, got.TotalTrades)
	assert.Equal(t, 12.5, got.TotalProfit)
	assert.JSONEq(t, `["a","b"]`, string(got.Logs))
	assert.Contains(t, string(got.Payload), `"cash":1000`)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
}

func TestListAndMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, Record{ID: id, Status: "queued"}))
		time.Sleep(2 * time.Millisecond)
	}
	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)

	_, err = s.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.Save(ctx, Record{}))
}
