package symbol

import "strings"

type BinanceConverter struct{}

var Binance BinanceConverter

// ToExchange maps "BTC/USDT", "btc-usdt" or "BTCUSDT" to "BTCUSDT".
func (BinanceConverter) ToExchange(asset string) string {
	s := Parse(asset).Binance()
	if s == "" {
		return strings.ToUpper(strings.TrimSpace(asset))
	}
	return s
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}
