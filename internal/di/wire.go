//go:build wireinject
// +build wireinject

package di

import (
	"CandleGrid/pkg/config"
	"CandleGrid/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Core engine and infrastructure
		ProvideAlignEngine,
		ProvideStorageManager,
		ProvideCandleStore,
		ProvideCandleCache,
		ProvideCandleCacheInterface,
		ProvideDataSource,
		ProvideEventPublisher,

		// Use cases
		ProvideCoordinator,
		ProvideAlignedReader,

		// HTTP surface and application server
		ProvideRateLimiter,
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
