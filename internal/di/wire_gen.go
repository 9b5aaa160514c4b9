// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"CryptoScanner/pkg/config"
	"CryptoScanner/pkg/server"
)

// Injectors from wire.go:

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := ProvideLogger(cfg, producer)
	if err != nil {
		return nil, err
	}
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	signalStore, err := ProvideSignalStore(client, logger)
	if err != nil {
		return nil, err
	}
	eventStore, err := ProvideEventStore(client, logger)
	if err != nil {
		return nil, err
	}
	bytesCache := ProvideBytesCache(cfg)
	signalsHandler := ProvideSignalsHandler(signalStore, eventStore, bytesCache, logger)
	metrics := ProvideMetrics()
	eventIntake := ProvideEventIntake(eventStore, metrics, logger, cfg)
	eventCollector := ProvideEventCollector(cfg, eventIntake, metrics)
	consumer, err := ProvideKafkaConsumer(cfg)
	if err != nil {
		return nil, err
	}
	kafkaEventsHandler := ProvideKafkaEventsHandler(eventIntake, metrics, cfg)
	redisClient := ProvideRedisClient(cfg)
	signalPublisher := ProvideSignalPublisher(producer, cfg)
	inferenceClient, err := ProvideInferenceClient(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}
	outcomeGenerator := ProvideOutcomeGenerator(inferenceClient, logger, metrics)
	estimator := ProvideEstimator(cfg, inferenceClient, logger, metrics)
	signalCalculator := ProvideSignalCalculator(cfg, logger)
	pipeline := ProvidePipeline(eventStore, signalStore, signalPublisher, outcomeGenerator, estimator, signalCalculator, metrics, logger, cfg)
	pipelineRunJob := ProvidePipelineRunJob(pipeline, logger)
	redisQueue := ProvideRunQueue(redisClient, pipelineRunJob, logger)
	queueService := ProvideQueueService(redisQueue, pipelineRunJob)
	runScheduler := ProvideRunScheduler(queueService, cfg, logger)
	app := ProvideApp(cfg, logger, signalsHandler, eventCollector, consumer, kafkaEventsHandler, redisQueue, runScheduler, signalPublisher, client)
	return app, nil
}
