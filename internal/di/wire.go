//go:build wireinject
// +build wireinject

package di

import (
	"BankStats/pkg/config"
	"BankStats/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideKafkaMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCallBudget,
		ProvidePriceFetcher,

		// Repositories
		ProvidePriceStore,
		ProvideReportPublisher,

		// Use cases
		ProvideAnalyticsService,
		ProvideRefreshService,
		ProvideResponseCache,
		ProvideRefreshCommandHandler,
		ProvideScheduler,

		// Transport
		ProvideAnalyticsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
