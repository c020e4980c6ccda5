package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	// DefaultQuote is appended to bare assets ("BTC" -> "BTCUSDT").
	DefaultQuote string

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.DefaultQuote = strings.ToUpper(strings.TrimSpace(out.DefaultQuote))
	if out.DefaultQuote == "" {
		out.DefaultQuote = "USDT"
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
