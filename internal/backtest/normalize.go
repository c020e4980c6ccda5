package backtest

import (
	"fmt"
	"math"
	"strings"

	"quantdesk/internal/market"
	"quantdesk/internal/pkg/convert"

	"github.com/tidwall/gjson"
)

// NormalizeRemote coerces a loosely shaped engine result into a Result.
// It never fails: malformed or missing fields fall back to zero values,
// malformed equity points are dropped.
func NormalizeRemote(jobID string, raw []byte) Result {
	res := emptyResult(SourceRemote)
	res.JobID = jobID
	if !gjson.ValidBytes(raw) {
		return res
	}
	root := gjson.ParseBytes(raw)
	if inner := root.Get("result"); inner.IsObject() && !root.Get("trades").Exists() {
		root = inner
	}
	if !root.IsObject() {
		return res
	}

	for i, item := range root.Get("trades").Array() {
		if !item.IsObject() {
			continue
		}
		res.Trades = append(res.Trades, normalizeTrade(i, item))
	}
	res.TotalTrades = len(res.Trades)

	curve := first(root, "equityCurve", "equity_curve", "equity")
	for _, item := range curve.Array() {
		if p, ok := normalizePoint(item); ok {
			res.EquityCurve = append(res.EquityCurve, p)
		}
	}

	if res.TotalTrades > 0 {
		res.WinRate = ratio(number(first(root, "winRate", "win_rate")))
	}
	res.TotalProfit = number(first(root, "totalProfit", "total_profit", "netProfit"))
	res.Drawdown = ratio(number(first(root, "drawdown", "maxDrawdown", "max_drawdown")))

	stats := first(root, "statistics", "rawStatistics")
	if stats.IsObject() {
		res.RawStatistics = make(map[string]string)
		stats.ForEach(func(k, v gjson.Result) bool {
			res.RawStatistics[k.String()] = v.String()
			return true
		})
	}
	return res
}

func normalizeTrade(idx int, item gjson.Result) Trade {
	t := Trade{
		ID:            strings.TrimSpace(first(item, "id", "tradeId").String()),
		EntryPrice:    number(first(item, "entryPrice", "entry_price")),
		Profit:        number(first(item, "profit", "pnl")),
		ProfitPercent: number(first(item, "profitPercent", "profit_percent", "pnlPercent")),
		Direction:     DirectionLong,
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("TRD-%d", idx)
	}
	t.EntryTime, _ = market.ParseTime(first(item, "entryTime", "entry_time"))
	if ts, ok := market.ParseTime(first(item, "exitTime", "exit_time")); ok {
		t.ExitTime = ts
	} else {
		t.ExitTime = t.EntryTime
	}
	if exit := first(item, "exitPrice", "exit_price"); exit.Exists() && exit.Type != gjson.Null {
		t.ExitPrice = number(exit)
	} else {
		t.ExitPrice = t.EntryPrice
	}
	if strings.EqualFold(strings.TrimSpace(item.Get("direction").String()), DirectionShort) {
		t.Direction = DirectionShort
	}
	return t
}

// normalizePoint accepts {time,value}, {x,y} and [time,value].
func normalizePoint(item gjson.Result) (EquityPoint, bool) {
	var tr, vr gjson.Result
	switch {
	case item.IsObject():
		tr = first(item, "time", "x")
		vr = first(item, "value", "y")
	case item.IsArray():
		pair := item.Array()
		if len(pair) != 2 {
			return EquityPoint{}, false
		}
		tr, vr = pair[0], pair[1]
	default:
		return EquityPoint{}, false
	}
	ts, ok := pointTime(tr)
	if !ok {
		return EquityPoint{}, false
	}
	v, ok := numberOK(vr)
	if !ok {
		return EquityPoint{}, false
	}
	return EquityPoint{Time: ts, Value: v}, true
}

func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func number(r gjson.Result) float64 {
	v, _ := numberOK(r)
	return v
}

func numberOK(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return convert.ToFloat64OK(r.Float())
	case gjson.String:
		return convert.ToFloat64OK(r.Str)
	default:
		return 0, false
	}
}

// pointTime accepts any finite number as a curve position, zero and index
// based x values included. Strings fall back to market.ParseTime.
func pointTime(r gjson.Result) (int64, bool) {
	if r.Type == gjson.String {
		if v, ok := convert.ParseNumber(r.Str); ok {
			return numericPointTime(v)
		}
		return market.ParseTime(r)
	}
	v, ok := numberOK(r)
	if !ok {
		return 0, false
	}
	return numericPointTime(v)
}

func numericPointTime(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v > 1e12 {
		v /= 1000
	}
	return int64(v), true
}

// ratio clamps to [0,1] without rescaling.
func ratio(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
