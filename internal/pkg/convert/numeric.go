// Package convert provides type conversion utilities.
package convert

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ToFloat64 converts various numeric types to float64.
// Returns 0 for unsupported types or parse failures.
func ToFloat64(v any) float64 {
	f, _ := ToFloat64OK(v)
	return f
}

// ToFloat64OK is ToFloat64 that also reports whether v held a usable number.
// NaN and infinities are rejected.
func ToFloat64OK(v any) (float64, bool) {
	var (
		f  float64
		ok = true
	)
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		f, ok = ParseNumber(t.String())
	case string:
		f, ok = ParseNumber(t)
	default:
		return 0, false
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumber parses a decimal string ("12.5", "-3e2", " 7 ").
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ToInt64 truncates the numeric value of v; 0 when v is not numeric.
func ToInt64(v any) int64 {
	f, ok := ToFloat64OK(v)
	if !ok {
		return 0
	}
	return int64(f)
}
