package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Symbol{
		"btc/usdt":  {Base: "BTC", Quote: "USDT"},
		"ETH-USD":   {Base: "ETH", Quote: "USD"},
		"SOLUSDT":   {Base: "SOL", Quote: "USDT"},
		"spy":       {Base: "SPY"},
		" bnb_btc ": {Base: "BNB", Quote: "BTC"},
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), in)
	}
	assert.Equal(t, Symbol{}, Parse("  "))
}

func TestBinanceConverter(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc/usdt"))
	assert.Equal(t, "ETHUSDT", Binance.ToExchange("ETHUSDT"))
	assert.Equal(t, "ETH/USDT", Binance.FromExchange("ETHUSDT"))
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETH/USDT"}, NormalizeList([]string{"btcusdt", "BTCUSDT", " eth/usdt", ""}))
	assert.Nil(t, NormalizeList(nil))
}
