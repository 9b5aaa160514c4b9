//go:build wireinject
// +build wireinject

package di

import (
	"CryptoScanner/pkg/config"
	"CryptoScanner/pkg/server"

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
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Stores and publishers
		ProvideEventStore,
		ProvideSignalStore,
		ProvideSignalPublisher,

		// Inference stack
		ProvideInferenceClient,
		ProvideOutcomeGenerator,
		ProvideEstimator,
		ProvideSignalCalculator,

		// Use cases
		ProvideEventIntake,
		ProvideKafkaEventsHandler,
		ProvideEventCollector,
		ProvidePipeline,
		ProvidePipelineRunJob,
		ProvideRunQueue,
		ProvideQueueService,
		ProvideRunScheduler,

		// HTTP API
		ProvideBytesCache,
		ProvideSignalsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
