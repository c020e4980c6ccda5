package candles

import (
	"context"
	"testing"

	"quantdesk/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveSaveQueryManifest(t *testing.T) {
	a, err := Open(t.TempDir())
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Save(ctx, "btc", "1H", []market.Candle{
		{Time: 60, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Time: 120, Open: 1.5, High: 2, Low: 1, Close: 1.8},
	}))
	require.NoError(t, a.Save(ctx, "BTC", "1h", []market.Candle{
		{Time: 120, Open: 1.5, High: 2.5, Low: 1, Close: 2.2, Volume: 9},
		{Time: 180, Open: 2.2, High: 2.4, Low: 2, Close: 2.3},
	}))

	got, err := a.Query(ctx, "BTC", "1h", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(120), got[0].Time)
	assert.Equal(t, 2.2, got[0].Close)
	assert.Equal(t, 9.0, got[0].Volume)
	assert.Equal(t, int64(180), got[1].Time)

	m, err := a.Manifest(ctx, "BTC", "1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, int64(60), m.MinTime)
	assert.Equal(t, int64(180), m.MaxTime)
	assert.Equal(t, "BTC", m.Asset)
	assert.Contains(t, m.Path, "1h.db")
}

func TestArchiveRejectsEmptyKey(t *testing.T) {
	a, err := Open(t.TempDir())
	require.NoError(t, err)
	defer a.Close()
	assert.Error(t, a.Save(context.Background(), "", "1h", []market.Candle{{Time: 1}}))
	_, err = Open("")
	assert.Error(t, err)
}
