package market

import (
	"context"
	"errors"
	"time"

	"quantdesk/internal/logger"
	"quantdesk/internal/pkg/circuit"

	"golang.org/x/time/rate"
)

// GuardConfig tunes GuardedProvider.
type GuardConfig struct {
	RateLimitPerMin  int
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// GuardedProvider throttles a Provider and fails fast while its breaker is open.
type GuardedProvider struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *circuit.Breaker
	log     *logger.Entry
}

func NewGuardedProvider(inner Provider, cfg GuardConfig) *GuardedProvider {
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &GuardedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(ratePerSec, burst),
		breaker: circuit.New(circuit.Config{Name: "market:" + inner.Name(), Threshold: threshold, Cooldown: cooldown}),
		log:     logger.With("market").WithField("provider", inner.Name()),
	}
}

func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Breaker exposes the breaker for status reporting.
func (g *GuardedProvider) Breaker() *circuit.Breaker { return g.breaker }

func (g *GuardedProvider) FetchCandles(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error) {
	if !g.breaker.Allow() {
		return nil, &FetchError{Provider: g.Name(), Asset: asset, Timeframe: timeframe, Err: ErrCircuitOpen}
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, NewFetchError(g.Name(), asset, timeframe, err)
	}
	candles, err := g.inner.FetchCandles(ctx, asset, timeframe, limit)
	if err != nil {
		// the caller giving up says nothing about the upstream
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, NewFetchError(g.Name(), asset, timeframe, err)
		}
		g.breaker.Failure()
		g.log.Warnf("[market] fetch %s %s failed: %v", asset, timeframe, err)
		return nil, NewFetchError(g.Name(), asset, timeframe, err)
	}
	g.breaker.Success()
	return candles, nil
}
