package market

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"quantdesk/internal/scheduler"
)

// Timeframe describes one bar granularity.
type Timeframe struct {
	Key      string
	Duration time.Duration
}

var supportedTimeframes = map[string]Timeframe{
	"1m":  {Key: "1m", Duration: time.Minute},
	"5m":  {Key: "5m", Duration: 5 * time.Minute},
	"15m": {Key: "15m", Duration: 15 * time.Minute},
	"30m": {Key: "30m", Duration: 30 * time.Minute},
	"1h":  {Key: "1h", Duration: time.Hour},
	"4h":  {Key: "4h", Duration: 4 * time.Hour},
	"1d":  {Key: "1d", Duration: 24 * time.Hour},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour},
}

// ParseTimeframe returns the canonical timeframe for input ("1H" -> "1h").
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if tf, ok := supportedTimeframes[key]; ok {
		return tf, nil
	}
	if d, ok := scheduler.ParseIntervalDuration(key); ok {
		return Timeframe{Key: key, Duration: d}, nil
	}
	return Timeframe{}, fmt.Errorf("unsupported timeframe: %q", input)
}

// TimeframeOrDefault is ParseTimeframe with a 1h fallback.
func TimeframeOrDefault(input string) Timeframe {
	tf, err := ParseTimeframe(input)
	if err != nil {
		return supportedTimeframes["1h"]
	}
	return tf
}

// SupportedTimeframes returns the canonical keys sorted by duration.
func SupportedTimeframes() []string {
	list := make([]Timeframe, 0, len(supportedTimeframes))
	for _, tf := range supportedTimeframes {
		list = append(list, tf)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Duration < list[j].Duration })
	keys := make([]string, len(list))
	for i, tf := range list {
		keys[i] = tf.Key
	}
	return keys
}

// InitialWindow is the first-paint window size: finer bars request more
// history, coarser bars fewer, so the first fetch stays fast.
func (tf Timeframe) InitialWindow() int {
	switch d := tf.Duration; {
	case d <= time.Minute:
		return 2000
	case d <= 5*time.Minute:
		return 1500
	case d <= 15*time.Minute:
		return 1000
	case d <= 30*time.Minute:
		return 800
	case d <= time.Hour:
		return 600
	case d <= 4*time.Hour:
		return 400
	case d <= 24*time.Hour:
		return 300
	default:
		return 200
	}
}

// VolatilityScale scales per-bar volatility relative to one hour bars.
func (tf Timeframe) VolatilityScale() float64 {
	if tf.Duration <= 0 {
		return 1
	}
	return math.Max(0.15, math.Sqrt(tf.Duration.Hours()))
}

// AlignDown truncates t to the timeframe grid.
func (tf Timeframe) AlignDown(t time.Time) time.Time {
	if tf.Duration <= 0 {
		return t
	}
	return t.UTC().Truncate(tf.Duration)
}
