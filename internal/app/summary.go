package app

import (
	"fmt"
	"strings"

	"quantdesk/internal/config"
	"quantdesk/internal/market"
)

type StartupSummary struct {
	Env        string
	HTTPAddr   string
	Provider   string
	MaxCandles int
	Archive    string
	EngineURL  string
	PollMs     int
	JobStore   string
	Risk       string
	Timeframes []string
}

func newStartupSummary(cfg *config.Config) *StartupSummary {
	return &StartupSummary{
		Env:        cfg.App.Env,
		HTTPAddr:   cfg.HTTP.Addr,
		Provider:   cfg.Market.Provider,
		MaxCandles: cfg.Cache.MaxCandles,
		Archive:    cfg.Cache.ArchivePath,
		EngineURL:  cfg.Engine.APIURL,
		PollMs:     cfg.Engine.PollIntervalMs,
		JobStore:   cfg.Engine.JobStorePath,
		Risk:       fmt.Sprintf("cash=%.2f fee=%.1fbps slippage=%.1fbps", cfg.Engine.Cash, cfg.Engine.FeeBps, cfg.Engine.SlippageBps),
		Timeframes: market.SupportedTimeframes(),
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[MARKET DATA]")
	fmt.Printf("  provider:    %s\n", s.Provider)
	fmt.Printf("  max candles: %d\n", s.MaxCandles)
	fmt.Printf("  archive:     %s\n", orDash(s.Archive))
	fmt.Printf("  timeframes:  %s\n", formatList(s.Timeframes))
	fmt.Println()

	fmt.Println("[REMOTE ENGINE]")
	fmt.Printf("  api:         %s\n", orDash(s.EngineURL))
	fmt.Printf("  poll:        %dms\n", s.PollMs)
	fmt.Printf("  job store:   %s\n", orDash(s.JobStore))
	fmt.Printf("  risk:        %s\n", s.Risk)
	fmt.Println()

	fmt.Printf("[HTTP] %s (env=%s)\n", s.HTTPAddr, s.Env)
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
