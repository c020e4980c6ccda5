package market

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// DecodeCandles accepts either a bare array of candles or an object holding
// a "candles" array. Array elements may be objects or exchange-style rows.
// Bars without a usable time are dropped; the result is chronological with
// duplicate times collapsed onto the last occurrence.
func DecodeCandles(raw []byte) ([]Candle, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("candle payload is not valid json")
	}
	root := gjson.ParseBytes(raw)
	var list gjson.Result
	switch {
	case root.IsArray():
		list = root
	case root.IsObject() && root.Get("candles").IsArray():
		list = root.Get("candles")
	case root.IsObject() && root.Get("data").IsArray():
		list = root.Get("data")
	default:
		return nil, fmt.Errorf("candle payload: expected array or {candles: [...]}, got %s", root.Type)
	}
	out := make([]Candle, 0, len(list.Array()))
	list.ForEach(func(_, v gjson.Result) bool {
		var c Candle
		switch {
		case v.IsObject():
			c = candleFromObject(v)
		case v.IsArray():
			c = candleFromRow(v)
		default:
			return true
		}
		if c.Time > 0 {
			out = append(out, c)
		}
		return true
	})
	return SortCandles(out), nil
}

// SortCandles orders candles by time and collapses duplicates in place.
func SortCandles(cs []Candle) []Candle {
	if len(cs) < 2 {
		return cs
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time < cs[j].Time })
	out := cs[:1]
	for _, c := range cs[1:] {
		if c.Time == out[len(out)-1].Time {
			out[len(out)-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
