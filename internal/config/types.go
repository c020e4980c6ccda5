package config

import (
	"strings"
	"time"
)

// Config is the root of the quantdesk configuration file.
type Config struct {
	App     AppConfig     `toml:"app"`
	HTTP    HTTPConfig    `toml:"http"`
	Market  MarketConfig  `toml:"market"`
	Cache   CacheConfig   `toml:"cache"`
	Engine  EngineConfig  `toml:"engine"`
	Sandbox SandboxConfig `toml:"sandbox"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	// LogPath tees logs into a file when set.
	LogPath string `toml:"log_path"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// MarketConfig selects the candle provider. Provider is one of binance, rest
// or synthetic.
type MarketConfig struct {
	Provider               string `toml:"provider"`
	RESTBaseURL            string `toml:"rest_base_url"`
	BinanceBaseURL         string `toml:"binance_base_url"`
	ProxyURL               string `toml:"proxy_url"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	RateLimitPerMin        int    `toml:"rate_limit_per_min"`
	Burst                  int    `toml:"burst"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
	SyntheticSeed          int64  `toml:"synthetic_seed"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func (m MarketConfig) BreakerCooldown() time.Duration {
	return time.Duration(m.BreakerCooldownSeconds) * time.Second
}

type CacheConfig struct {
	MaxCandles          int    `toml:"max_candles"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	ArchivePath         string `toml:"archive_path"`
}

func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// EngineConfig points at the remote execution service. Cash, FeeBps and
// SlippageBps are the default risk parameters merged into every payload.
type EngineConfig struct {
	APIURL         string  `toml:"api_url"`
	APIToken       string  `toml:"api_token"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	PollIntervalMs int     `toml:"poll_interval_ms"`
	JobStorePath   string  `toml:"job_store_path"`
	Cash           float64 `toml:"cash"`
	FeeBps         float64 `toml:"fee_bps"`
	SlippageBps    float64 `toml:"slippage_bps"`
}

func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

type SandboxConfig struct {
	Addr        string `toml:"addr"`
	StepDelayMs int    `toml:"step_delay_ms"`
	Window      int    `toml:"window"`
}

func (s SandboxConfig) StepDelay() time.Duration {
	return time.Duration(s.StepDelayMs) * time.Millisecond
}

// keySet tracks the dotted paths set explicitly in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
