package market

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandlesShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bare array", `[{"time":120,"open":1,"high":2,"low":0.5,"close":1.5},{"time":60,"open":1,"high":1,"low":1,"close":1}]`},
		{"wrapped", `{"candles":[{"time":60,"open":1,"high":1,"low":1,"close":1},{"time":120,"open":"1","high":"2","low":"0.5","close":"1.5"}]}`},
		{"rows in ms", `[[60000,"1","1","1","1","10"],[120000,"1","2","0.5","1.5","12"]]`},
		{"date strings", `{"candles":[{"time":"1970-01-01T00:01:00Z","open":1,"high":1,"low":1,"close":1},{"time":"1970-01-01 00:02:00","o":1,"h":2,"l":0.5,"c":1.5}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeCandles([]byte(tc.raw))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, int64(60), got[0].Time)
			assert.Equal(t, int64(120), got[1].Time)
			assert.InDelta(t, 1.5, got[1].Close, 1e-9)
			assert.InDelta(t, 0.5, got[1].Low, 1e-9)
		})
	}
}

func TestDecodeCandlesDropsUntimedAndDuplicates(t *testing.T) {
	raw := `[{"time":60,"close":1},{"close":9},{"time":"garbage","close":9},{"time":60,"close":2},7]`
	got, err := DecodeCandles([]byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Close)
}

func TestDecodeCandlesRejectsUnknownShape(t *testing.T) {
	_, err := DecodeCandles([]byte(`{"foo":1}`))
	assert.Error(t, err)
	_, err = DecodeCandles([]byte(`not json`))
	assert.Error(t, err)
}

func TestCandleUnmarshalJSON(t *testing.T) {
	var c Candle
	require.NoError(t, json.Unmarshal([]byte(`{"time":1700000000000,"open":"1.25","high":2,"low":1,"close":1.5,"volume":3}`), &c))
	assert.Equal(t, int64(1700000000), c.Time)
	assert.Equal(t, 1.25, c.Open)
	assert.Equal(t, 3.0, c.Volume)
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &c))
}
