package backtest

import (
	"fmt"

	"quantdesk/internal/market"

	talib "github.com/markcheno/go-talib"
)

const (
	ShortPeriod        = 9
	LongPeriod         = 21
	ContractMultiplier = 10000.0
	StartingEquity     = 10000.0
)

type openPosition struct {
	entryTime  int64
	entryPrice float64
}

// RunBacktest goes long when SMA(9) crosses above SMA(21) and exits on the
// opposite cross. Equity moves only when a trade closes; a position still
// open after the last bar is not reported. Never fails: too few bars yields
// an empty result.
func RunBacktest(candles []market.Candle) Result {
	res := emptyResult(SourceLocal)
	n := len(candles)
	if n < LongPeriod {
		return res
	}
	closes := market.Candles(candles).Closes()
	short := talib.Sma(closes, ShortPeriod)
	long := talib.Sma(closes, LongPeriod)

	equity := StartingEquity
	peak := StartingEquity
	maxDD := 0.0
	wins := 0
	var pos *openPosition
	res.EquityCurve = make([]EquityPoint, 0, n-LongPeriod+1)

	for i := LongPeriod - 1; i < n; i++ {
		if i > LongPeriod-1 {
			prevS, prevL := short[i-1], long[i-1]
			curS, curL := short[i], long[i]
			switch {
			case pos == nil && prevS <= prevL && curS > curL:
				pos = &openPosition{entryTime: candles[i].Time, entryPrice: closes[i]}
			case pos != nil && prevS >= prevL && curS < curL:
				t := closeTrade(len(res.Trades), pos, candles[i].Time, closes[i])
				res.Trades = append(res.Trades, t)
				equity += t.Profit
				if t.Profit > 0 {
					wins++
				}
				pos = nil
			}
		}
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Time: candles[i].Time, Value: equity})
	}

	res.TotalTrades = len(res.Trades)
	if res.TotalTrades > 0 {
		res.WinRate = float64(wins) / float64(res.TotalTrades)
	}
	res.TotalProfit = equity - StartingEquity
	res.Drawdown = maxDD
	return res
}

func closeTrade(idx int, pos *openPosition, exitTime int64, exitPrice float64) Trade {
	t := Trade{
		ID:         fmt.Sprintf("TRD-%d", idx),
		EntryTime:  pos.entryTime,
		ExitTime:   exitTime,
		EntryPrice: pos.entryPrice,
		ExitPrice:  exitPrice,
		Direction:  DirectionLong,
		Profit:     (exitPrice - pos.entryPrice) * ContractMultiplier,
	}
	if pos.entryPrice != 0 {
		t.ProfitPercent = (exitPrice - pos.entryPrice) / pos.entryPrice
	}
	return t
}
