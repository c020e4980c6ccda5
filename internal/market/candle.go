package market

import (
	"fmt"
	"strings"
	"time"

	"quantdesk/internal/pkg/convert"

	"github.com/tidwall/gjson"
)

// Candle is one OHLC(V) bar. Time is the bar open in epoch seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// UnmarshalJSON accepts epoch seconds, epoch milliseconds or date strings for
// time and numeric strings for prices.
func (c *Candle) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("candle: invalid json")
	}
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return fmt.Errorf("candle: expected object, got %s", r.Type)
	}
	*c = candleFromObject(r)
	return nil
}

func (c Candle) TimeString() string {
	if c.Time <= 0 {
		return "-"
	}
	return time.Unix(c.Time, 0).UTC().Format("2006-01-02 15:04") + "Z"
}

func candleFromObject(r gjson.Result) Candle {
	ts, _ := ParseTime(first(r, "time", "t", "timestamp", "openTime", "open_time"))
	return Candle{
		Time:   ts,
		Open:   numberOf(first(r, "open", "o")),
		High:   numberOf(first(r, "high", "h")),
		Low:    numberOf(first(r, "low", "l")),
		Close:  numberOf(first(r, "close", "c")),
		Volume: numberOf(first(r, "volume", "v")),
	}
}

// candleFromRow reads exchange style rows: [time, open, high, low, close, volume, ...].
func candleFromRow(r gjson.Result) Candle {
	row := r.Array()
	if len(row) < 5 {
		return Candle{}
	}
	ts, _ := ParseTime(row[0])
	c := Candle{
		Time:  ts,
		Open:  numberOf(row[1]),
		High:  numberOf(row[2]),
		Low:   numberOf(row[3]),
		Close: numberOf(row[4]),
	}
	if len(row) > 5 {
		c.Volume = numberOf(row[5])
	}
	return c
}

func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func numberOf(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		return convert.ToFloat64(r.Str)
	default:
		return 0
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime converts a JSON time value into epoch seconds. Numbers above 1e12
// are read as milliseconds. ok is false for missing or unparseable values.
func ParseTime(r gjson.Result) (int64, bool) {
	switch r.Type {
	case gjson.Number:
		return epochSeconds(r.Float())
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return 0, false
		}
		if f, ok := convert.ParseNumber(s); ok {
			return epochSeconds(f)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Unix(), true
			}
		}
	}
	return 0, false
}

func epochSeconds(v float64) (int64, bool) {
	if v <= 0 {
		return 0, false
	}
	if v > 1e12 {
		v /= 1000
	}
	return int64(v), true
}
