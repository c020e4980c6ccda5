// Package app wires the quantdesk components together and runs them.
package app

import (
	"context"
	"fmt"
	"strings"

	"quantdesk/internal/config"
	"quantdesk/internal/engine"
	"quantdesk/internal/logger"
	"quantdesk/internal/marketcache"
	apihttp "quantdesk/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App is the long-running API process: market cache, remote orchestrator
// and the HTTP surface over both.
type App struct {
	cfg     *config.Config
	cache   *marketcache.Cache
	orch    *engine.Orchestrator
	http    *apihttp.Server
	Summary *StartupSummary
	// ConfigPath enables hot reload when set.
	ConfigPath string
}

func newApp(cfg *config.Config, cache *marketcache.Cache, orch *engine.Orchestrator, srv *apihttp.Server) *App {
	return &App{
		cfg:     cfg,
		cache:   cache,
		orch:    orch,
		http:    srv,
		Summary: newStartupSummary(cfg),
	}
}

// NewApp builds the application without starting it. The returned cleanup
// closes the stores.
func NewApp(cfg *config.Config) (*App, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return InitializeApp(cfg)
}

// Run serves HTTP until ctx is done and applies config reloads meanwhile.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if strings.TrimSpace(a.ConfigPath) != "" {
		if err := config.Watch(a.ConfigPath, a.ApplyConfig); err != nil {
			logger.Warnf("[app] config watch disabled: %v", err)
		}
	}

	group.Go(func() error {
		<-ctx.Done()
		a.orch.Reset()
		return nil
	})

	return group.Wait()
}

// ApplyConfig applies the settings that can change without a restart: log
// level and the default risk parameters.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	logger.SetLevel(cfg.App.LogLevel)
	a.orch.SetRiskDefaults(riskDefaults(cfg))
	logger.Infof("[app] config applied: log_level=%s cash=%.2f fee_bps=%.2f slippage_bps=%.2f",
		cfg.App.LogLevel, cfg.Engine.Cash, cfg.Engine.FeeBps, cfg.Engine.SlippageBps)
}

func (a *App) Cache() *marketcache.Cache { return a.cache }

func (a *App) Orchestrator() *engine.Orchestrator { return a.orch }
