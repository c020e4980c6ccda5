package marketcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"quantdesk/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderCommitsInitialThenEscalates(t *testing.T) {
	p := newFakeProvider()
	c := New(p, WithMaxCandles(3000))
	l := NewLoader(c, market.NewSyntheticGenerator(1))

	var mu sync.Mutex
	var sizes []int
	l.OnCommit(func(v View) {
		mu.Lock()
		sizes = append(sizes, len(v.Candles))
		mu.Unlock()
	})

	v := l.Load(context.Background(), "btc", "1h")
	require.NoError(t, v.Err)
	assert.Equal(t, "BTC", v.Asset)
	assert.Len(t, v.Candles, 600)
	assert.False(t, v.Escalated)

	l.Wait()
	cur := l.Current()
	assert.Len(t, cur.Candles, 3000)
	assert.True(t, cur.Escalated)
	mu.Lock()
	assert.Equal(t, []int{600, 3000}, sizes)
	mu.Unlock()
}

func TestLoaderUsesFullCachedWindowSynchronously(t *testing.T) {
	p := newFakeProvider()
	c := New(p, WithMaxCandles(1000))
	_, err := c.EnsureWindow(context.Background(), "ETH", "4h", 1000)
	require.NoError(t, err)

	l := NewLoader(c, nil)
	v := l.Load(context.Background(), "ETH", "4h")
	assert.Len(t, v.Candles, 1000)
	assert.True(t, v.Escalated)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestLoaderFallsBackToSynthetic(t *testing.T) {
	p := newFakeProvider()
	p.fail.Store(true)
	c := New(p)
	l := NewLoader(c, market.NewSyntheticGenerator(3))

	v := l.Load(context.Background(), "SOL", "15m")
	var fe *market.FetchError
	require.ErrorAs(t, v.Err, &fe)
	assert.True(t, v.Synthetic)
	assert.Len(t, v.Candles, 1000)
	l.Wait()
	assert.Equal(t, int32(1), p.calls.Load(), "no escalation after a failed primary load")
	assert.True(t, l.Current().Synthetic)
}

func TestLoaderSupersededLoadIsDropped(t *testing.T) {
	p := newFakeProvider()
	p.gate = make(chan struct{})
	c := New(p, WithMaxCandles(5000))
	l := NewLoader(c, nil)

	first := make(chan View, 1)
	go func() { first <- l.Load(context.Background(), "BTC", "1h") }()
	require.Equal(t, 600, <-p.limits)

	close(p.gate)
	second := l.Load(context.Background(), "ETH", "1d")
	stale := <-first
	l.Wait()

	cur := l.Current()
	assert.Equal(t, "ETH", cur.Asset)
	assert.Equal(t, second.Seq, cur.Seq)
	assert.Less(t, stale.Seq, cur.Seq)
}

func TestLoaderCancelStopsEscalationCommit(t *testing.T) {
	p := newFakeProvider()
	c := New(p, WithMaxCandles(2000))
	l := NewLoader(c, nil)
	p.gate = make(chan struct{})

	done := make(chan View, 1)
	go func() { done <- l.Load(context.Background(), "BTC", "4h") }()
	<-p.limits
	p.gate <- struct{}{}
	v := <-done
	require.Len(t, v.Candles, 400)

	require.Equal(t, 2000, <-p.limits)
	l.Cancel()
	close(p.gate)
	l.Wait()
	assert.Len(t, l.Current().Candles, 400)

	require.Eventually(t, func() bool {
		e, ok := c.Peek("BTC", "4h")
		return ok && e.RequestedLimit == 2000
	}, 2*time.Second, time.Millisecond)
}
