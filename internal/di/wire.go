//go:build wireinject
// +build wireinject

package di

import (
	"TruthGate/pkg/config"
	"TruthGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideCandleStore,
		ProvideOpportunityLog,
		ProvideEvaluationHistory,
		ProvideStateStore,

		// Domain services
		ProvideEvaluator,
		ProvideAggregator,
		ProvideDecisionFeed,
		ProvideGateway,

		// Use cases
		ProvideTruthRunner,
		ProvideCalibrationRunner,
		ProvideIntakeHandler,
		ProvideJobQueue,

		// Surfaces
		ProvideHTTPHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
