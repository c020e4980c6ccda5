package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"quantdesk/internal/app"
	"quantdesk/internal/backtest"
	"quantdesk/internal/engine"
	"quantdesk/internal/market"
	"quantdesk/internal/report"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()
		a, cleanup, err := app.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}
		defer cleanup()
		a.ConfigPath = resolveConfigPath()
		ctx, stop := signalContext()
		defer stop()
		return a.Run(ctx)
	},
}

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run the in-process execution engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()
		srv, cleanup, err := app.InitializeSandbox(cfg)
		if err != nil {
			return fmt.Errorf("init sandbox: %w", err)
		}
		defer cleanup()
		ctx, stop := signalContext()
		defer stop()
		return srv.Start(ctx)
	},
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the SMA 9/21 crossover locally and print the result",
	RunE:  runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.String("asset", "BTC", "asset symbol")
	f.String("timeframe", "1h", "bar timeframe")
	f.Int("limit", 2000, "number of bars")
	f.String("html", "", "write the equity chart to this HTML file")
	f.String("png", "", "write the equity chart to this PNG file (needs Chrome)")

	rf := remoteCmd.Flags()
	rf.String("payload", "", "YAML payload file")
	rf.Duration("timeout", 10*time.Minute, "give up waiting after this long")
	rf.String("html", "", "write the equity chart to this HTML file")
	_ = remoteCmd.MarkFlagRequired("payload")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	asset, _ := cmd.Flags().GetString("asset")
	timeframe, _ := cmd.Flags().GetString("timeframe")
	limit, _ := cmd.Flags().GetInt("limit")
	htmlPath, _ := cmd.Flags().GetString("html")
	pngPath, _ := cmd.Flags().GetString("png")
	if _, err := market.ParseTimeframe(timeframe); err != nil {
		return err
	}

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	cache, cleanup, err := app.InitializeCache(cfg)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()
	candles, err := cache.EnsureWindow(ctx, asset, timeframe, limit)
	if err != nil {
		return err
	}
	res := backtest.RunBacktest(candles)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d bars\n", strings.ToUpper(asset), timeframe, len(candles))
	report.WriteTable(cmd.OutOrStdout(), res)

	title := fmt.Sprintf("%s %s SMA 9/21", strings.ToUpper(asset), timeframe)
	if htmlPath == "" && pngPath == "" {
		return nil
	}
	html, err := report.RenderEquityHTML(res, title)
	if err != nil {
		return err
	}
	if htmlPath != "" {
		if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
			return err
		}
	}
	if pngPath != "" {
		png, err := report.RenderEquityPNG(ctx, html)
		if err != nil {
			return err
		}
		if err := os.WriteFile(pngPath, png, 0o644); err != nil {
			return err
		}
	}
	return nil
}

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Submit a payload to the remote engine and follow it to completion",
	RunE:  runRemote,
}

func runRemote(cmd *cobra.Command, args []string) error {
	payloadPath, _ := cmd.Flags().GetString("payload")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	htmlPath, _ := cmd.Flags().GetString("html")

	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}
	var payload engine.Payload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse payload %s: %w", payloadPath, err)
	}

	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	a, cleanup, err := app.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer cleanup()
	orch := a.Orchestrator()

	out := cmd.OutOrStdout()
	var (
		mu      sync.Mutex
		printed int
	)
	unsubscribe := orch.Subscribe(func(st engine.State) {
		mu.Lock()
		defer mu.Unlock()
		for ; printed < len(st.Logs); printed++ {
			fmt.Fprintf(out, "  | %s\n", st.Logs[printed])
		}
	})
	defer unsubscribe()

	ctx, stop := signalContext()
	defer stop()
	st := orch.RunLeanBacktest(ctx, payload)
	fmt.Fprintf(out, "job %s: %s\n", st.JobID, st.Status)

	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		orch.Reset()
		return fmt.Errorf("job %s still %s after %s", st.JobID, orch.State().Status, timeout)
	case <-ctx.Done():
		orch.Reset()
		return ctx.Err()
	}

	final := orch.State()
	for _, line := range final.Journal {
		fmt.Fprintln(out, line)
	}
	if final.Status != engine.StatusCompleted || final.Result == nil {
		return fmt.Errorf("job %s ended %s: %s", final.JobID, final.Status, final.Error)
	}
	report.WriteTable(out, *final.Result)
	if htmlPath != "" {
		html, err := report.RenderEquityHTML(*final.Result, "Remote "+final.JobID)
		if err != nil {
			return err
		}
		return os.WriteFile(htmlPath, html, 0o644)
	}
	return nil
}
