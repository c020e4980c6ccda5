package app

import (
	"fmt"
	"strings"

	"quantdesk/internal/config"
	"quantdesk/internal/engine"
	"quantdesk/internal/engine/sandbox"
	"quantdesk/internal/gateway/binance"
	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	"quantdesk/internal/marketcache"
	"quantdesk/internal/store/candles"
	"quantdesk/internal/store/jobs"
	apihttp "quantdesk/internal/transport/http/api"
)

// provideMarketProvider builds the configured candle source. Network
// providers are wrapped in the rate limit and circuit breaker guard.
func provideMarketProvider(cfg *config.Config) (market.Provider, error) {
	mc := cfg.Market
	var inner market.Provider
	switch mc.Provider {
	case "binance":
		src, err := binance.New(binance.Config{
			RESTBaseURL:  mc.BinanceBaseURL,
			HTTPTimeout:  mc.Timeout(),
			ProxyEnabled: strings.TrimSpace(mc.ProxyURL) != "",
			RESTProxyURL: mc.ProxyURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init binance source: %w", err)
		}
		inner = src
	case "rest":
		inner = market.NewRESTProvider(mc.RESTBaseURL, mc.Timeout())
	case "synthetic":
		return &market.SyntheticProvider{Gen: market.NewSyntheticGenerator(mc.SyntheticSeed)}, nil
	default:
		return nil, fmt.Errorf("unknown market provider %q", mc.Provider)
	}
	return market.NewGuardedProvider(inner, market.GuardConfig{
		RateLimitPerMin:  mc.RateLimitPerMin,
		Burst:            mc.Burst,
		BreakerThreshold: mc.BreakerThreshold,
		BreakerCooldown:  mc.BreakerCooldown(),
	}), nil
}

// provideArchive opens the candle archive; an empty path disables it.
func provideArchive(cfg *config.Config) (*candles.Archive, func(), error) {
	path := strings.TrimSpace(cfg.Cache.ArchivePath)
	if path == "" {
		return nil, func() {}, nil
	}
	archive, err := candles.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open candle archive: %w", err)
	}
	cleanup := func() {
		if err := archive.Close(); err != nil {
			logger.Warnf("[app] close candle archive: %v", err)
		}
	}
	return archive, cleanup, nil
}

func provideCache(cfg *config.Config, provider market.Provider, archive *candles.Archive) *marketcache.Cache {
	opts := []marketcache.Option{
		marketcache.WithMaxCandles(cfg.Cache.MaxCandles),
		marketcache.WithFetchTimeout(cfg.Cache.FetchTimeout()),
	}
	if archive != nil {
		opts = append(opts, marketcache.WithArchive(archive))
	}
	return marketcache.New(provider, opts...)
}

// provideJobStore opens the job history; an empty path disables it.
func provideJobStore(cfg *config.Config) (*jobs.Store, func(), error) {
	path := strings.TrimSpace(cfg.Engine.JobStorePath)
	if path == "" {
		return nil, func() {}, nil
	}
	store, err := jobs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open job store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warnf("[app] close job store: %v", err)
		}
	}
	return store, cleanup, nil
}

func provideEngineClient(cfg *config.Config) (*engine.Client, error) {
	return engine.NewClient(engine.ClientConfig{
		APIURL:   cfg.Engine.APIURL,
		APIToken: cfg.Engine.APIToken,
		Timeout:  cfg.Engine.Timeout(),
	})
}

func riskDefaults(cfg *config.Config) engine.RiskDefaults {
	return engine.RiskDefaults{
		Cash:        cfg.Engine.Cash,
		FeeBps:      cfg.Engine.FeeBps,
		SlippageBps: cfg.Engine.SlippageBps,
	}
}

func provideOrchestrator(cfg *config.Config, client *engine.Client, store *jobs.Store) *engine.Orchestrator {
	opts := []engine.Option{
		engine.WithPollInterval(cfg.Engine.PollInterval()),
		engine.WithRiskDefaults(riskDefaults(cfg)),
	}
	if store != nil {
		opts = append(opts, engine.WithJobStore(store))
	}
	return engine.NewOrchestrator(client, opts...)
}

func provideHTTPServer(cfg *config.Config, cache *marketcache.Cache, archive *candles.Archive, orch *engine.Orchestrator, store *jobs.Store) (*apihttp.Server, error) {
	sc := apihttp.Config{
		Addr:           cfg.HTTP.Addr,
		Cache:          cache,
		Synthetic:      market.NewSyntheticGenerator(cfg.Market.SyntheticSeed),
		Orchestrator:   orch,
		BacktestWindow: cfg.Sandbox.Window,
	}
	if archive != nil {
		sc.Archive = archive
	}
	if store != nil {
		sc.Jobs = store
	}
	return apihttp.NewServer(sc)
}

func provideSandbox(cfg *config.Config, cache *marketcache.Cache) (*sandbox.Server, func(), error) {
	srv, err := sandbox.NewServer(sandbox.Config{
		Addr:      cfg.Sandbox.Addr,
		Cache:     cache,
		StepDelay: cfg.Sandbox.StepDelay(),
		Window:    cfg.Sandbox.Window,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = srv.Close() }
	return srv, cleanup, nil
}
