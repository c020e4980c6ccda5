package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRemoteMissingTradeFields(t *testing.T) {
	raw := `{"trades":[{"entryTime":1700000000,"entryPrice":"101.5","profit":"oops"}],"winRate":1}`
	res := NormalizeRemote("job-1", []byte(raw))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, "TRD-0", tr.ID)
	assert.Equal(t, DirectionLong, tr.Direction)
	assert.Equal(t, 101.5, tr.ExitPrice)
	assert.Equal(t, int64(1700000000), tr.ExitTime)
	assert.Equal(t, 0.0, tr.Profit)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, 1, res.TotalTrades)
	assert.Equal(t, 1.0, res.WinRate)
}

func TestNormalizeRemoteFullPayload(t *testing.T) {
	raw := `{
		"totalTrades": 99,
		"winRate": 0.5,
		"totalProfit": "1234.5",
		"drawdown": "0.125",
		"trades": [
			{"id":"a","entryTime":"2024-01-01T00:00:00Z","exitTime":"2024-01-02T00:00:00Z","entryPrice":10,"exitPrice":12,"direction":"SHORT","profit":-2,"profitPercent":-0.2},
			"garbage",
			{"entryTime":1704067200000,"entryPrice":5,"direction":"sideways"}
		],
		"equityCurve": [
			{"time":1704067200,"value":10000},
			{"x":1704153600,"y":"10100"},
			[1704240000, 10050],
			{"time":"bad","value":1},
			{"x":1704326400},
			null
		],
		"statistics": {"Sharpe Ratio": "1.2", "Total Orders": 4}
	}`
	res := NormalizeRemote("j", []byte(raw))

	require.Len(t, res.Trades, 2)
	assert.Equal(t, 2, res.TotalTrades)
	assert.Equal(t, "a", res.Trades[0].ID)
	assert.Equal(t, DirectionShort, res.Trades[0].Direction)
	assert.Equal(t, int64(1704153600), res.Trades[0].ExitTime)
	assert.Equal(t, "TRD-2", res.Trades[1].ID)
	assert.Equal(t, DirectionLong, res.Trades[1].Direction)
	assert.Equal(t, int64(1704067200), res.Trades[1].EntryTime)

	assert.Equal(t, 0.5, res.WinRate)
	assert.Equal(t, 1234.5, res.TotalProfit)
	assert.Equal(t, 0.125, res.Drawdown)
	require.Len(t, res.EquityCurve, 3)
	assert.Equal(t, EquityPoint{Time: 1704153600, Value: 10100}, res.EquityCurve[1])
	assert.Equal(t, "1.2", res.RawStatistics["Sharpe Ratio"])
	assert.Equal(t, "4", res.RawStatistics["Total Orders"])
}

func TestNormalizeRemoteDegradesGracefully(t *testing.T) {
	for _, raw := range []string{``, `not json`, `[]`, `{}`, `{"trades":"x","winRate":"high"}`} {
		res := NormalizeRemote("j", []byte(raw))
		assert.Equal(t, 0, res.TotalTrades, raw)
		assert.Equal(t, 0.0, res.WinRate, raw)
		assert.NotNil(t, res.Trades, raw)
		assert.NotNil(t, res.EquityCurve, raw)
		assert.Equal(t, SourceRemote, res.Source, raw)
	}
}

func TestNormalizeRemoteMissingDrawdownIsZero(t *testing.T) {
	raw := `{"result":{"equityCurve":[{"x":1,"y":100},{"x":2,"y":80},{"x":3,"y":120}]}}`
	res := NormalizeRemote("j", []byte(raw))
	require.Len(t, res.EquityCurve, 3)
	assert.Equal(t, 0.0, res.Drawdown)
	assert.Equal(t, 0.0, res.WinRate)

	res = NormalizeRemote("j", []byte(`{"drawdown":"n/a","equityCurve":[[1,100],[2,50]]}`))
	assert.Equal(t, 0.0, res.Drawdown)
}

func TestNormalizeRemoteKeepsZeroIndexedPoints(t *testing.T) {
	raw := `{"equityCurve":[{"x":0,"y":10000},{"x":1,"y":10100},{"time":"0","value":1},[0,5],{"x":null,"y":3}]}`
	res := NormalizeRemote("j", []byte(raw))
	assert.Equal(t, []EquityPoint{
		{Time: 0, Value: 10000},
		{Time: 1, Value: 10100},
		{Time: 0, Value: 1},
		{Time: 0, Value: 5},
	}, res.EquityCurve)
}

func TestNormalizeRemoteClampsRatiosWithoutRescaling(t *testing.T) {
	trades := `[{"entryTime":1,"entryPrice":1}]`
	cases := []struct {
		name     string
		winRate  string
		drawdown string
		wantWin  float64
		wantDD   float64
	}{
		{"fractions", "0.4", "0.25", 0.4, 0.25},
		{"above one", "1.5", "50", 1, 1},
		{"negative", "-0.2", "-3", 0, 0},
		{"strings", `"0.75"`, `"0.1"`, 0.75, 0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"trades":` + trades + `,"winRate":` + tc.winRate + `,"drawdown":` + tc.drawdown + `}`
			res := NormalizeRemote("j", []byte(raw))
			assert.Equal(t, tc.wantWin, res.WinRate)
			assert.Equal(t, tc.wantDD, res.Drawdown)
		})
	}
}
