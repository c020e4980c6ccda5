// Package backtest evaluates the SMA 9/21 crossover strategy locally and
// normalizes remote engine results into the same Result shape.
package backtest

const (
	SourceLocal  = "local"
	SourceRemote = "remote"

	DirectionLong  = "long"
	DirectionShort = "short"
)

// Result is the canonical backtest report. TotalTrades always equals
// len(Trades) and WinRate is zero when there are no trades.
type Result struct {
	TotalTrades   int               `json:"totalTrades"`
	WinRate       float64           `json:"winRate"`
	TotalProfit   float64           `json:"totalProfit"`
	Drawdown      float64           `json:"drawdown"`
	Trades        []Trade           `json:"trades"`
	EquityCurve   []EquityPoint     `json:"equityCurve"`
	Source        string            `json:"source"`
	JobID         string            `json:"jobId,omitempty"`
	RawStatistics map[string]string `json:"rawStatistics,omitempty"`
}

// Trade times are epoch seconds.
type Trade struct {
	ID            string  `json:"id"`
	EntryTime     int64   `json:"entryTime"`
	ExitTime      int64   `json:"exitTime"`
	EntryPrice    float64 `json:"entryPrice"`
	ExitPrice     float64 `json:"exitPrice"`
	Direction     string  `json:"direction"`
	Profit        float64 `json:"profit"`
	ProfitPercent float64 `json:"profitPercent"`
}

type EquityPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// FinalEquity is the last curve value, or start when the curve is empty.
func (r Result) FinalEquity(start float64) float64 {
	if len(r.EquityCurve) == 0 {
		return start + r.TotalProfit
	}
	return r.EquityCurve[len(r.EquityCurve)-1].Value
}

func emptyResult(source string) Result {
	return Result{
		Trades:      []Trade{},
		EquityCurve: []EquityPoint{},
		Source:      source,
	}
}
