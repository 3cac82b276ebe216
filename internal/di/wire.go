//go:build wireinject
// +build wireinject

package di

import (
	"RegimeCast/pkg/config"
	"RegimeCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Model
		ProvideModel,
		ProvideModelFactory,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCacheService,

		// Repositories
		ProvidePredictionStore,
		ProvidePredictionSinks,
		ProvideCheckpointStore,
		ProvideObservationSource,

		// Use cases
		ProvideRunner,
		ProvideExporter,
		ProvideReplayer,
		ProvideQueuePublisher,
		ProvideQueueWorker,

		// HTTP
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
