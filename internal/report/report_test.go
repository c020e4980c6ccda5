package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantdesk/internal/backtest"
)

func sampleResult() backtest.Result {
	return backtest.Result{
		TotalTrades: 3,
		WinRate:     2.0 / 3.0,
		TotalProfit: 150,
		Drawdown:    0.01,
		Source:      backtest.SourceLocal,
		Trades: []backtest.Trade{
			{ID: "TRD-0", EntryTime: 1_700_000_000, ExitTime: 1_700_003_600, EntryPrice: 1, ExitPrice: 1.01, Direction: "long", Profit: 100, ProfitPercent: 0.01},
			{ID: "TRD-1", EntryTime: 1_700_007_200, ExitTime: 1_700_010_800, EntryPrice: 1.01, ExitPrice: 1, Direction: "short", Profit: 100, ProfitPercent: 0.0099},
			{ID: "TRD-2", EntryTime: 1_700_014_400, ExitTime: 1_700_018_000, EntryPrice: 1, ExitPrice: 0.995, Direction: "long", Profit: -50, ProfitPercent: -0.005},
		},
		EquityCurve: []backtest.EquityPoint{
			{Time: 1_700_000_000, Value: 10000},
			{Time: 1_700_003_600, Value: 10100},
			{Time: 1_700_010_800, Value: 10200},
			{Time: 1_700_018_000, Value: 10150},
		},
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleResult())
	assert.Equal(t, 3, sum.Trades)
	assert.Equal(t, 2, sum.Wins)
	assert.Equal(t, 1, sum.Losses)
	assert.InDelta(t, 50.0, sum.AvgProfit, 1e-9)
	assert.InDelta(t, 100.0, sum.MedianProfit, 1e-9)
	assert.InDelta(t, 70.7106781, sum.StdDevProfit, 1e-6)
	assert.Equal(t, 100.0, sum.BestTrade)
	assert.Equal(t, -50.0, sum.WorstTrade)
	assert.Equal(t, 10150.0, sum.FinalEquity)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(backtest.Result{Source: backtest.SourceRemote})
	assert.Zero(t, sum.Trades)
	assert.Zero(t, sum.AvgProfit)
	assert.Zero(t, sum.StdDevProfit)
	assert.Equal(t, backtest.StartingEquity, sum.FinalEquity)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, sampleResult())
	out := buf.String()
	assert.Contains(t, out, "66.67%")
	assert.Contains(t, out, "10150.00")
	assert.Contains(t, out, "TRD-2")
	assert.Contains(t, out, "SHORT")
	assert.Contains(t, out, "-0.50%")

	buf.Reset()
	res := sampleResult()
	res.Trades = nil
	res.JobID = "job-9"
	WriteTable(&buf, res)
	assert.Contains(t, buf.String(), "no closed trades")
	assert.Contains(t, buf.String(), "job-9")
}

func TestRenderEquityHTML(t *testing.T) {
	html, err := RenderEquityHTML(sampleResult(), "BTC 1h")
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "echarts")
	assert.Contains(t, page, "BTC 1h")
	assert.Contains(t, page, "10150")
	assert.True(t, strings.Count(page, "echarts.init") >= 2)

	_, err = RenderEquityHTML(backtest.Result{}, "empty")
	assert.Error(t, err)
}

func TestRenderEquityPNG(t *testing.T) {
	if testing.Short() {
		t.Skip("headless render skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		t.Skipf("headless chrome unavailable: %v", err)
	}
	html, err := RenderEquityHTML(sampleResult(), "png")
	require.NoError(t, err)
	png, err := RenderEquityPNG(ctx, html)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = RenderEquityPNG(ctx, nil)
	assert.Error(t, err)
}
