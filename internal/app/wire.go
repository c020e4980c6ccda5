//go:build wireinject

package app

import (
	"quantdesk/internal/config"
	"quantdesk/internal/engine/sandbox"
	"quantdesk/internal/marketcache"

	"github.com/google/wire"
)

var marketSet = wire.NewSet(provideMarketProvider, provideArchive, provideCache)

var engineSet = wire.NewSet(provideJobStore, provideEngineClient, provideOrchestrator)

func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(marketSet, engineSet, provideHTTPServer, newApp)
	return nil, nil, nil
}

func InitializeCache(cfg *config.Config) (*marketcache.Cache, func(), error) {
	wire.Build(marketSet)
	return nil, nil, nil
}

func InitializeSandbox(cfg *config.Config) (*sandbox.Server, func(), error) {
	wire.Build(marketSet, provideSandbox)
	return nil, nil, nil
}
