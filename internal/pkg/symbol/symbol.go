package symbol

import (
	"strings"
)

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "USD", "BTC", "ETH", "BNB"}

// Symbol is a base/quote pair; either side may be empty for plain tickers
// such as equities ("SPY").
type Symbol struct {
	Base  string
	Quote string
}

// Internal renders BASE/QUOTE, or just BASE when no quote was recognised.
func (s Symbol) Internal() string {
	if s.Base == "" {
		return ""
	}
	if s.Quote == "" {
		return s.Base
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" {
		return ""
	}
	return s.Base + s.Quote
}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}
	return Symbol{Base: s}
}

// Asset upper-cases and trims an asset name without otherwise rewriting it,
// so cache keys stay stable for whatever form the caller used.
func Asset(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Base returns the base currency of s ("btc/usdt" -> "BTC").
func Base(s string) string {
	return Parse(s).Base
}

func Normalize(s string) string {
	return Parse(s).Internal()
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Asset(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
