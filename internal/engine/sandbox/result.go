package sandbox

import (
	"fmt"

	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
)

type xyPoint struct {
	X int64   `json:"x"`
	Y float64 `json:"y"`
}

type remoteResult struct {
	TotalTrades int               `json:"totalTrades"`
	WinRate     float64           `json:"winRate"`
	TotalProfit float64           `json:"totalProfit"`
	Drawdown    float64           `json:"drawdown"`
	Trades      []backtest.Trade  `json:"trades"`
	EquityCurve []xyPoint         `json:"equityCurve"`
	Statistics  map[string]string `json:"statistics"`
}

// rawResult renders res the way an external engine would: {x,y} curve
// points and a free-form statistics table.
func rawResult(res backtest.Result, p engine.Payload) remoteResult {
	curve := make([]xyPoint, len(res.EquityCurve))
	for i, pt := range res.EquityCurve {
		curve[i] = xyPoint{X: pt.Time, Y: pt.Value}
	}
	var fees, slippage float64
	for _, t := range res.Trades {
		notional := (t.EntryPrice + t.ExitPrice) * backtest.ContractMultiplier
		if p.FeeBps != nil {
			fees += notional * *p.FeeBps / 10000
		}
		if p.SlippageBps != nil {
			slippage += notional * *p.SlippageBps / 10000
		}
	}
	stats := map[string]string{
		"Total Trades":  fmt.Sprintf("%d", res.TotalTrades),
		"Win Rate":      fmt.Sprintf("%.2f%%", res.WinRate*100),
		"Net Profit":    fmt.Sprintf("%.2f", res.TotalProfit),
		"Max Drawdown":  fmt.Sprintf("%.2f%%", res.Drawdown*100),
		"Total Fees":    fmt.Sprintf("%.2f", fees),
		"Slippage Cost": fmt.Sprintf("%.2f", slippage),
	}
	if p.Cash != nil {
		stats["Starting Cash"] = fmt.Sprintf("%.2f", *p.Cash)
	}
	return remoteResult{
		TotalTrades: res.TotalTrades,
		WinRate:     res.WinRate,
		TotalProfit: res.TotalProfit,
		Drawdown:    res.Drawdown,
		Trades:      res.Trades,
		EquityCurve: curve,
		Statistics:  stats,
	}
}
