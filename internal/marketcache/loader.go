package marketcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	symbolpkg "quantdesk/internal/pkg/symbol"
)

// View is what a consumer renders: the latest committed window.
type View struct {
	Asset     string         `json:"asset"`
	Timeframe string         `json:"timeframe"`
	Candles   market.Candles `json:"candles"`
	Synthetic bool           `json:"synthetic"`
	Err       error          `json:"-"`
	Escalated bool           `json:"escalated"`
	Seq       uint64         `json:"seq"`
}

// ErrText is Err as a string for serialisation.
func (v View) ErrText() string {
	if v.Err == nil {
		return ""
	}
	return v.Err.Error()
}

// Loader drives progressive loads for one consumer. Every Load supersedes the
// previous one; commits from a superseded load are dropped.
type Loader struct {
	cache *Cache
	synth *market.SyntheticGenerator
	now   func() time.Time
	log   *logger.Entry

	mu       sync.Mutex
	cancel   context.CancelFunc
	seq      uint64
	current  View
	onCommit []func(View)
	wg       sync.WaitGroup
}

func NewLoader(cache *Cache, synth *market.SyntheticGenerator) *Loader {
	if synth == nil {
		synth = market.NewSyntheticGenerator(time.Now().UnixNano())
	}
	return &Loader{
		cache: cache,
		synth: synth,
		now:   cache.now,
		log:   logger.With("loader"),
	}
}

// OnCommit registers fn to run after every committed view.
func (l *Loader) OnCommit(fn func(View)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.onCommit = append(l.onCommit, fn)
	l.mu.Unlock()
}

func (l *Loader) Current() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Cancel aborts the active load, if any.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Wait blocks until background escalations have finished.
func (l *Loader) Wait() { l.wg.Wait() }

// Load commits a first window sized for the timeframe, then escalates to the
// cache maximum in the background. A cached full-size window is returned
// without any fetch. When the first fetch fails a synthetic series is
// committed alongside the error.
func (l *Loader) Load(ctx context.Context, asset, timeframe string) View {
	asset = symbolpkg.Asset(asset)
	timeframe = strings.ToUpper(strings.TrimSpace(timeframe))

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	full := l.cache.MaxCandles()
	if e, ok := l.cache.Peek(asset, timeframe); ok && e.RequestedLimit >= full {
		v := View{Asset: asset, Timeframe: timeframe, Candles: e.Candles, Escalated: true, Seq: seq}
		l.commit(loadCtx, v)
		return v
	}

	tf := market.TimeframeOrDefault(timeframe)
	initial := l.cache.clamp(tf.InitialWindow())
	candles, err := l.cache.EnsureWindow(loadCtx, asset, timeframe, initial)
	if err != nil {
		if loadCtx.Err() != nil {
			return View{Asset: asset, Timeframe: timeframe, Err: err, Seq: seq}
		}
		l.log.Warnf("[loader] %s %s: %v; using synthetic data", asset, timeframe, err)
		v := View{
			Asset:     asset,
			Timeframe: timeframe,
			Candles:   l.synth.Generate(asset, timeframe, initial, l.now()),
			Synthetic: true,
			Err:       err,
			Seq:       seq,
		}
		l.commit(loadCtx, v)
		return v
	}
	v := View{Asset: asset, Timeframe: timeframe, Candles: candles, Escalated: initial >= full, Seq: seq}
	if !l.commit(loadCtx, v) {
		return v
	}
	if initial < full {
		l.wg.Add(1)
		go l.escalate(loadCtx, v, full)
	}
	return v
}

func (l *Loader) escalate(ctx context.Context, base View, full int) {
	defer l.wg.Done()
	larger, err := l.cache.EnsureWindow(ctx, base.Asset, base.Timeframe, full)
	if err != nil {
		l.log.Debugf("[loader] escalate %s %s: %v", base.Asset, base.Timeframe, err)
		return
	}
	if len(larger) <= len(base.Candles) {
		return
	}
	next := base
	next.Candles = larger
	next.Escalated = true
	l.commit(ctx, next)
}

// commit publishes v unless its load was cancelled or superseded.
func (l *Loader) commit(ctx context.Context, v View) bool {
	l.mu.Lock()
	if ctx.Err() != nil || v.Seq != l.seq {
		l.mu.Unlock()
		return false
	}
	l.current = v
	hooks := append([]func(View){}, l.onCommit...)
	l.mu.Unlock()
	for _, fn := range hooks {
		fn(v)
	}
	return true
}
