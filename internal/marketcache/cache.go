// Package marketcache keeps bounded candle windows per asset/timeframe and
// coalesces concurrent fetches for the same key.
package marketcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	symbolpkg "quantdesk/internal/pkg/symbol"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxCandles   = 12000
	DefaultFetchTimeout = 60 * time.Second
)

// Key identifies one window, e.g. "BTC-1H".
type Key string

func MakeKey(asset, timeframe string) Key {
	return Key(symbolpkg.Asset(asset) + "-" + strings.ToUpper(strings.TrimSpace(timeframe)))
}

// Entry is the cached window for one key.
type Entry struct {
	RequestedLimit int
	Candles        market.Candles
	FetchedAt      time.Time
}

// Archive receives every stored window (write-through).
type Archive interface {
	Save(ctx context.Context, asset, timeframe string, candles []market.Candle) error
}

// Stats counts cache activity since construction.
type Stats struct {
	Entries   int   `json:"entries"`
	Fetches   int64 `json:"fetches"`
	Hits      int64 `json:"hits"`
	Coalesced int64 `json:"coalesced"`
	Waiting   int64 `json:"waiting"`
	Failures  int64 `json:"failures"`
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMaxCandles(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxCandles = n
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

func WithArchive(a Archive) Option {
	return func(c *Cache) { c.archive = a }
}

// Cache is safe for concurrent use. Construct one per process and share it.
type Cache struct {
	fetcher      market.Provider
	now          func() time.Time
	maxCandles   int
	fetchTimeout time.Duration
	archive      Archive
	log          *logger.Entry

	mu      sync.RWMutex
	entries map[Key]Entry
	group   singleflight.Group

	fetches   atomic.Int64
	hits      atomic.Int64
	coalesced atomic.Int64
	waiting   atomic.Int64
	failures  atomic.Int64
}

func New(fetcher market.Provider, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      fetcher,
		now:          time.Now,
		maxCandles:   DefaultMaxCandles,
		fetchTimeout: DefaultFetchTimeout,
		entries:      make(map[Key]Entry),
		log:          logger.With("cache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cache) MaxCandles() int { return c.maxCandles }

func (c *Cache) clamp(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > c.maxCandles {
		return c.maxCandles
	}
	return limit
}

type fetchResult struct {
	requested int
	candles   market.Candles
}

// EnsureWindow returns at least limit candles (fewer only when the provider
// has less history) for asset/timeframe, fetching only when no cached entry
// already covers limit. A fetch already in flight for the key is joined; if
// it was sized for a smaller window, a new fetch follows.
func (c *Cache) EnsureWindow(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
	asset = symbolpkg.Asset(asset)
	timeframe = strings.ToUpper(strings.TrimSpace(timeframe))
	if asset == "" || timeframe == "" {
		return nil, fmt.Errorf("asset and timeframe are required")
	}
	limit = c.clamp(limit)
	key := MakeKey(asset, timeframe)

	if e, ok := c.peek(key); ok && e.RequestedLimit >= limit {
		c.hits.Add(1)
		return e.Candles.Clone(), nil
	}

	led := false
	ch := c.group.DoChan(string(key), func() (any, error) {
		led = true
		return c.fetchAndStore(ctx, key, asset, timeframe, limit)
	})
	c.waiting.Add(1)
	var res singleflight.Result
	select {
	case res = <-ch:
		c.waiting.Add(-1)
	case <-ctx.Done():
		c.waiting.Add(-1)
		return nil, market.NewFetchError(c.fetcher.Name(), asset, timeframe, ctx.Err())
	}
	if !led {
		c.coalesced.Add(1)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	got := res.Val.(fetchResult)
	if got.requested >= limit {
		return got.candles.Clone(), nil
	}
	c.log.Debugf("[cache] %s joined fetch of %d, need %d; refetching", key, got.requested, limit)
	direct, err := c.fetchAndStore(ctx, key, asset, timeframe, limit)
	if err != nil {
		return nil, err
	}
	return direct.candles.Clone(), nil
}

// PrefetchWindow warms the cache and swallows every failure.
func (c *Cache) PrefetchWindow(ctx context.Context, asset, timeframe string, limit int) {
	if _, err := c.EnsureWindow(ctx, asset, timeframe, limit); err != nil {
		c.log.Debugf("[cache] prefetch %s %s %d failed: %v", asset, timeframe, limit, err)
	}
}

// Peek returns the cached entry without fetching.
func (c *Cache) Peek(asset, timeframe string) (Entry, bool) {
	e, ok := c.peek(MakeKey(asset, timeframe))
	if !ok {
		return Entry{}, false
	}
	e.Candles = e.Candles.Clone()
	return e, true
}

func (c *Cache) peek(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries:   n,
		Fetches:   c.fetches.Load(),
		Hits:      c.hits.Load(),
		Coalesced: c.coalesced.Load(),
		Waiting:   c.waiting.Load(),
		Failures:  c.failures.Load(),
	}
}

// fetchAndStore runs detached from the caller's cancellation so that joined
// waiters are not failed by whoever started the fetch.
func (c *Cache) fetchAndStore(ctx context.Context, key Key, asset, timeframe string, limit int) (fetchResult, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()
	c.fetches.Add(1)
	start := c.now()
	candles, err := c.fetcher.FetchCandles(fctx, asset, strings.ToLower(timeframe), limit)
	if err != nil {
		c.failures.Add(1)
		return fetchResult{}, market.NewFetchError(c.fetcher.Name(), asset, timeframe, err)
	}
	candles = market.Candles(market.SortCandles(candles)).Tail(c.maxCandles)
	stored := c.store(key, Entry{RequestedLimit: limit, Candles: candles, FetchedAt: c.now()})
	c.log.Debugf("[cache] %s fetched %d/%d bars in %s: %s", key, len(candles), limit, c.now().Sub(start),
		market.Candles(candles).Snapshot(strings.ToLower(timeframe)))
	if c.archive != nil && len(candles) > 0 {
		go c.archiveWindow(asset, timeframe, candles)
	}
	return fetchResult{requested: stored.RequestedLimit, candles: stored.Candles}, nil
}

// store keeps whichever entry covers the larger window.
func (c *Cache) store(key Key, e Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur.RequestedLimit >= e.RequestedLimit {
		return cur
	}
	c.entries[key] = e
	return e
}

func (c *Cache) archiveWindow(asset, timeframe string, candles []market.Candle) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.archive.Save(ctx, asset, timeframe, candles); err != nil {
		c.log.Warnf("[cache] archive %s %s failed: %v", asset, timeframe, err)
	}
}
