// Package report turns a backtest.Result into human-facing output: summary
// statistics, a console table and an equity chart.
package report

import (
	"github.com/montanaflynn/stats"

	"quantdesk/internal/backtest"
)

type Summary struct {
	Source       string
	JobID        string
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	TotalProfit  float64
	Drawdown     float64
	FinalEquity  float64
	AvgProfit    float64
	MedianProfit float64
	StdDevProfit float64
	BestTrade    float64
	WorstTrade   float64
}

// Summarize derives per-trade statistics. Profit statistics stay zero when
// the result has no trades.
func Summarize(res backtest.Result) Summary {
	sum := Summary{
		Source:      res.Source,
		JobID:       res.JobID,
		Trades:      len(res.Trades),
		WinRate:     res.WinRate,
		TotalProfit: res.TotalProfit,
		Drawdown:    res.Drawdown,
		FinalEquity: res.FinalEquity(backtest.StartingEquity),
	}
	if len(res.Trades) == 0 {
		return sum
	}
	profits := make(stats.Float64Data, 0, len(res.Trades))
	for _, tr := range res.Trades {
		profits = append(profits, tr.Profit)
		if tr.Profit > 0 {
			sum.Wins++
		} else {
			sum.Losses++
		}
	}
	sum.AvgProfit, _ = stats.Mean(profits)
	sum.MedianProfit, _ = stats.Median(profits)
	sum.StdDevProfit, _ = stats.StandardDeviation(profits)
	sum.BestTrade, _ = stats.Max(profits)
	sum.WorstTrade, _ = stats.Min(profits)
	return sum
}
