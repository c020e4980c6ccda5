package market

import "time"

const DefaultKlineGrace = 10 * time.Second

// DropUnclosed drops the last bar if it is still forming at now. Exchanges
// such as Binance return the in-progress candle as the final element.
func DropUnclosed(candles []Candle, interval time.Duration, now time.Time) []Candle {
	return dropUnclosedAt(candles, interval, now.UTC(), DefaultKlineGrace)
}

func dropUnclosedAt(candles []Candle, interval time.Duration, now time.Time, grace time.Duration) []Candle {
	if len(candles) == 0 || interval <= 0 {
		return candles
	}
	if grace < 0 {
		grace = 0
	}
	last := candles[len(candles)-1]
	if last.Time <= 0 {
		return candles
	}
	closeAt := time.Unix(last.Time, 0).Add(interval).Add(grace)
	if now.Before(closeAt) {
		return candles[:len(candles)-1]
	}
	return candles
}
