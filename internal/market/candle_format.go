package market

import (
	"fmt"
	"math"
	"strings"
)

type Candles []Candle

// Closes returns the closing prices in order.
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Tail returns the most recent n candles (all of them when n >= len).
func (cs Candles) Tail(n int) Candles {
	if n <= 0 {
		return Candles{}
	}
	if n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

// Clone copies the slice so callers cannot alias cached windows.
func (cs Candles) Clone() Candles {
	if cs == nil {
		return nil
	}
	out := make(Candles, len(cs))
	copy(out, cs)
	return out
}

func (cs Candles) Snapshot(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	low := math.MaxFloat64
	high := -math.MaxFloat64
	for _, bar := range cs {
		low = math.Min(low, bar.Low)
		high = math.Max(high, bar.High)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("bars=%d close=%.4f", len(cs), last.Close))
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%s)", (last.Close-base)/base*100, iv))
	}
	sb.WriteString(fmt.Sprintf(" range=%.4f-%.4f %s..%s", low, high, first.TimeString(), last.TimeString()))
	return sb.String()
}
