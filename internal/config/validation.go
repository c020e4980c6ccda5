package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	return c.Sandbox.validate()
}

func (a AppConfig) validate() error {
	switch a.LogLevel {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level must be debug/info/warn/error, got %q", a.LogLevel)
	}
}

func (m MarketConfig) validate() error {
	switch m.Provider {
	case "binance":
		if strings.TrimSpace(m.BinanceBaseURL) == "" {
			return fmt.Errorf("market.binance_base_url is required for the binance provider")
		}
	case "rest":
		if strings.TrimSpace(m.RESTBaseURL) == "" {
			return fmt.Errorf("market.rest_base_url is required for the rest provider")
		}
	case "synthetic":
	default:
		return fmt.Errorf("market.provider must be binance/rest/synthetic, got %q", m.Provider)
	}
	if m.RateLimitPerMin < 0 {
		return fmt.Errorf("market.rate_limit_per_min must be >= 0")
	}
	if m.BreakerThreshold < 0 || m.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("market.breaker_* must be >= 0")
	}
	return nil
}

func (c CacheConfig) validate() error {
	if c.MaxCandles < 1 {
		return fmt.Errorf("cache.max_candles must be >= 1")
	}
	if c.FetchTimeoutSeconds < 1 {
		return fmt.Errorf("cache.fetch_timeout_seconds must be >= 1")
	}
	return nil
}

func (e EngineConfig) validate() error {
	if e.PollIntervalMs < 1 {
		return fmt.Errorf("engine.poll_interval_ms must be >= 1")
	}
	if e.Cash < 0 {
		return fmt.Errorf("engine.cash must be >= 0")
	}
	if e.FeeBps < 0 || e.FeeBps > 1000 {
		return fmt.Errorf("engine.fee_bps must be within [0, 1000]")
	}
	if e.SlippageBps < 0 || e.SlippageBps > 1000 {
		return fmt.Errorf("engine.slippage_bps must be within [0, 1000]")
	}
	return nil
}

func (s SandboxConfig) validate() error {
	if s.StepDelayMs < 0 {
		return fmt.Errorf("sandbox.step_delay_ms must be >= 0")
	}
	if s.Window < 1 {
		return fmt.Errorf("sandbox.window must be >= 1")
	}
	return nil
}
