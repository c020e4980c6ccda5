package config

import "strings"

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultHTTPAddr         = ":9991"
	defaultMarketProvider   = "binance"
	defaultBinanceREST      = "https://fapi.binance.com"
	defaultMarketTimeout    = 15
	defaultMarketRate       = 1200
	defaultMarketBurst      = 10
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30
	defaultSyntheticSeed    = 42
	defaultCacheMaxCandles  = 12000
	defaultCacheTimeout     = 60
	defaultCacheArchive     = "data/candles"
	defaultEngineAPI        = "http://127.0.0.1:9992"
	defaultEngineTimeout    = 30
	defaultEnginePollMs     = 1500
	defaultEngineJobStore   = "data/jobs.db"
	defaultEngineCash       = 10000
	defaultSandboxAddr      = ":9992"
	defaultSandboxStepMs    = 200
	defaultSandboxWindow    = 2000
)

// applyDefaults fills every key the files left unset.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Cache.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Sandbox.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.provider", &m.Provider, defaultMarketProvider),
		stringFieldDefault("market.binance_base_url", &m.BinanceBaseURL, defaultBinanceREST),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		intFieldDefault("market.rate_limit_per_min", &m.RateLimitPerMin, defaultMarketRate),
		intFieldDefault("market.burst", &m.Burst, defaultMarketBurst),
		intFieldDefault("market.breaker_threshold", &m.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("market.breaker_cooldown_seconds", &m.BreakerCooldownSeconds, defaultBreakerCooldown),
		fieldDefault{
			key:   "market.synthetic_seed",
			need:  func() bool { return m.SyntheticSeed == 0 },
			apply: func() { m.SyntheticSeed = defaultSyntheticSeed },
		},
	)
	m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
}

func (c *CacheConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("cache.max_candles", &c.MaxCandles, defaultCacheMaxCandles),
		intFieldDefault("cache.fetch_timeout_seconds", &c.FetchTimeoutSeconds, defaultCacheTimeout),
		stringFieldDefault("cache.archive_path", &c.ArchivePath, defaultCacheArchive),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("engine.api_url", &e.APIURL, defaultEngineAPI),
		intFieldDefault("engine.timeout_seconds", &e.TimeoutSeconds, defaultEngineTimeout),
		intFieldDefault("engine.poll_interval_ms", &e.PollIntervalMs, defaultEnginePollMs),
		stringFieldDefault("engine.job_store_path", &e.JobStorePath, defaultEngineJobStore),
		fieldDefault{
			key:   "engine.cash",
			need:  func() bool { return e.Cash == 0 },
			apply: func() { e.Cash = defaultEngineCash },
		},
	)
	e.APIURL = strings.TrimRight(strings.TrimSpace(e.APIURL), "/")
}

func (s *SandboxConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("sandbox.addr", &s.Addr, defaultSandboxAddr),
		intFieldDefault("sandbox.step_delay_ms", &s.StepDelayMs, defaultSandboxStepMs),
		intFieldDefault("sandbox.window", &s.Window, defaultSandboxWindow),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

// applyFieldDefaults never overrides a key that was set explicitly, even to
// a zero value.
func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}
