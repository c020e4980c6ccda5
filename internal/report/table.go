package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"quantdesk/internal/backtest"
)

// WriteTable prints the summary block followed by one row per trade.
func WriteTable(w io.Writer, res backtest.Result) {
	sum := Summarize(res)

	head := tablewriter.NewWriter(w)
	head.SetHeader([]string{"Metric", "Value"})
	head.SetAlignment(tablewriter.ALIGN_LEFT)
	head.SetAutoFormatHeaders(false)
	source := sum.Source
	if sum.JobID != "" {
		source = fmt.Sprintf("%s (%s)", source, sum.JobID)
	}
	head.AppendBulk([][]string{
		{"Source", source},
		{"Trades", fmt.Sprintf("%d (%d won / %d lost)", sum.Trades, sum.Wins, sum.Losses)},
		{"Win rate", formatPct(sum.WinRate)},
		{"Total profit", formatMoney(sum.TotalProfit)},
		{"Max drawdown", formatPct(sum.Drawdown)},
		{"Final equity", formatMoney(sum.FinalEquity)},
		{"Avg / median profit", formatMoney(sum.AvgProfit) + " / " + formatMoney(sum.MedianProfit)},
		{"Profit stddev", formatMoney(sum.StdDevProfit)},
		{"Best / worst trade", formatMoney(sum.BestTrade) + " / " + formatMoney(sum.WorstTrade)},
	})
	head.Render()

	if len(res.Trades) == 0 {
		fmt.Fprintln(w, "no closed trades")
		return
	}
	trades := tablewriter.NewWriter(w)
	trades.SetHeader([]string{"ID", "Dir", "Entry", "Exit", "Entry Px", "Exit Px", "Profit", "Profit %"})
	trades.SetAlignment(tablewriter.ALIGN_RIGHT)
	trades.SetAutoFormatHeaders(false)
	for _, tr := range res.Trades {
		trades.Append([]string{
			tr.ID,
			strings.ToUpper(tr.Direction),
			formatTime(tr.EntryTime),
			formatTime(tr.ExitTime),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			fmt.Sprintf("%.4f", tr.ExitPrice),
			formatMoney(tr.Profit),
			formatPct(tr.ProfitPercent),
		})
	}
	trades.Render()
}

func formatPct(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatTime(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}
