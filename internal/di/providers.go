package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"CryptoScanner/internal/domain/repository"
	dsvc "CryptoScanner/internal/domain/service"
	"CryptoScanner/internal/handler/api"
	mid "CryptoScanner/internal/middleware"
	internalrepo "CryptoScanner/internal/repository"
	icache "CryptoScanner/internal/service/cache"
	"CryptoScanner/internal/service/collector"
	"CryptoScanner/internal/service/inference"
	"CryptoScanner/internal/services/estimator"
	"CryptoScanner/internal/services/outcomes"
	"CryptoScanner/internal/usecase"
	pkgcache "CryptoScanner/pkg/cache"
	pkgch "CryptoScanner/pkg/clickhouse"
	"CryptoScanner/pkg/config"
	pkgkafka "CryptoScanner/pkg/kafka"
	applogger "CryptoScanner/pkg/logger"
	"CryptoScanner/pkg/metrics"
	"CryptoScanner/pkg/queue"
	"CryptoScanner/pkg/server"
)

// ProvideLogger creates the application logger. When a logs topic is
// configured, aggregated error logs are shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      kafkaLogSink{p: producer},
		})
	}
	return l, nil
}

// kafkaLogSink adapts the producer to the log collector's publisher.
type kafkaLogSink struct {
	p *pkgkafka.Producer
}

func (s kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.p.Publish(ctx, topic, nil, payload)
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the shared ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideEventStore creates the ClickHouse event store and ensures its
// schema exists.
func ProvideEventStore(chClient *pkgch.Client, l *applogger.Logger) (repository.EventStore, error) {
	store := internalrepo.NewCHEventStore(chClient)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideSignalStore creates the ClickHouse signal store and ensures
// its schema exists.
func ProvideSignalStore(chClient *pkgch.Client, l *applogger.Logger) (repository.SignalStore, error) {
	store := internalrepo.NewCHSignalStore(chClient)
	store.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideInferenceClient builds the provider rotation client. Backends
// whose API key is absent from the environment are skipped at startup.
func ProvideInferenceClient(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*inference.Client, error) {
	specs := make([]inference.BackendSpec, 0, len(cfg.Inference.Providers))
	for _, p := range cfg.Inference.Providers {
		backend := inference.NewOpenAIBackend(inference.BackendConfig{
			Name:        p.Name,
			URL:         p.URL,
			KeyEnv:      p.KeyEnv,
			Model:       p.Model,
			RPM:         p.RPM,
			QualityTier: p.QualityTier,
		}, cfg.Inference.RequestTimeout)
		if backend == nil {
			l.Warn("inference provider skipped, no api key", applogger.String("provider", p.Name))
			continue
		}
		specs = append(specs, inference.BackendSpec{Backend: backend, RPM: p.RPM})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no inference providers have api keys set")
	}

	return inference.NewClient(specs,
		inference.WithCooldown(cfg.Inference.Cooldown),
		inference.WithWindow(cfg.Inference.Window),
		inference.WithRetrySchedule(cfg.Inference.RetrySchedule),
		inference.WithLogger(l),
		inference.WithMetrics(m),
	), nil
}

// ProvideOutcomeGenerator creates the outcome skeleton generator.
func ProvideOutcomeGenerator(ai *inference.Client, l *applogger.Logger, m repository.Metrics) dsvc.OutcomeGenerator {
	return outcomes.NewGenerator(ai, l, m)
}

// ProvideEstimator creates the multi-sample probability estimator.
func ProvideEstimator(cfg *config.Config, ai *inference.Client, l *applogger.Logger, m repository.Metrics) dsvc.Estimator {
	return estimator.NewEstimator(ai,
		estimator.WithTemperatures(cfg.Estimator.Temperatures),
		estimator.WithQuorum(cfg.Estimator.Quorum),
		estimator.WithExtraRounds(cfg.Estimator.ExtraRounds),
		estimator.WithTolerance(cfg.Estimator.Tolerance),
		estimator.WithLogger(l),
		estimator.WithMetrics(m),
	)
}

// ProvideSignalCalculator creates the signal calculator.
func ProvideSignalCalculator(cfg *config.Config, l *applogger.Logger) dsvc.SignalCalculator {
	return usecase.NewSignalCalculator(usecase.SignalParams{
		Threshold:      cfg.Signals.Threshold,
		MaxTokenReturn: cfg.Signals.MaxTokenReturn,
		Similarity:     cfg.Signals.Similarity,
		DateWindowDays: cfg.Signals.DateWindowDays,
		WeightByTier:   cfg.Signals.WeightByTier,
	}, l)
}

// ProvideKafkaProducer creates a producer when signal publishing is
// configured, nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.SignalsTopic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher wraps the producer for the signals topic.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
}

// ProvidePipeline creates the scan pipeline.
func ProvidePipeline(
	store repository.EventStore,
	signals repository.SignalStore,
	pub repository.SignalPublisher,
	gen dsvc.OutcomeGenerator,
	est dsvc.Estimator,
	calc dsvc.SignalCalculator,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Pipeline {
	p := usecase.NewPipeline(store, signals, gen, est, calc, m, l, usecase.PipelineParams{
		Workers:     cfg.Pipeline.Workers,
		EventLimit:  cfg.Pipeline.EventLimit,
		SignalLimit: cfg.Pipeline.SignalLimit,
		RunTimeout:  cfg.Pipeline.RunTimeout,
	})
	if pub != nil {
		p.WithPublisher(pub)
	}
	return p
}

// ProvideEventIntake creates the deduplicating intake processor with a
// memo over the title lookups. With Redis the memo is layered so
// replicas share it; otherwise it stays in-process.
func ProvideEventIntake(store repository.EventStore, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.EventIntake {
	intake := usecase.NewEventIntake(store, m, l, usecase.IntakeParams{
		Similarity:     cfg.Intake.Similarity,
		DateWindowDays: cfg.Intake.DateWindowDays,
	})
	return intake.WithTitlesMemo(titlesMemo(cfg, l))
}

func titlesMemo(cfg *config.Config, l *applogger.Logger) pkgcache.Service {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache()
	}
	host, port := splitHostPort(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		l.Warn("redis cache unavailable, intake memo falls back to memory", applogger.Error(err))
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideKafkaConsumer creates the events consumer when intake runs
// over Kafka, nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Intake.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaEventsHandler creates the intake message handler.
func ProvideKafkaEventsHandler(intake *usecase.EventIntake, m repository.Metrics, cfg *config.Config) *usecase.KafkaEventsHandler {
	return usecase.NewKafkaEventsHandler(cfg.Kafka.EventsTopic, intake, m)
}

// ProvideEventCollector creates the WebSocket collector when intake
// runs over a stream, nil otherwise.
func ProvideEventCollector(
	cfg *config.Config,
	intake *usecase.EventIntake,
	m repository.Metrics,
) *usecase.EventCollector {
	if cfg.Intake.Type != "websocket" {
		return nil
	}
	stream := collector.New(
		cfg.Collector.APIKey,
		cfg.Collector.WebSocketURL,
		cfg.Collector.Channels,
		cfg.Collector.ReconnectDelay,
		cfg.Collector.PingInterval,
	)
	pipe := mid.NewIntakePipeline(intake, m,
		mid.WithMaxRPS(cfg.Intake.MaxRPS),
		mid.WithBufferSize(cfg.Intake.BufferSize),
	)
	return usecase.NewEventCollector(stream, intake, m, pipe)
}

// ProvideRedisClient creates a Redis client when Redis is enabled,
// nil otherwise.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvidePipelineRunJob creates the queued pipeline run job.
func ProvidePipelineRunJob(pipeline *usecase.Pipeline, l *applogger.Logger) *usecase.PipelineRunJob {
	return usecase.NewPipelineRunJob(pipeline, l)
}

// ProvideRunQueue creates the Redis job queue with the run job
// registered. Returns nil when Redis is disabled.
func ProvideRunQueue(client *redis.Client, job *usecase.PipelineRunJob, l *applogger.Logger) *queue.RedisQueue {
	if client == nil {
		return nil
	}
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    1,
		RetryLimit: 2,
		RetryDelay: 30 * time.Second,
	}, client, []queue.Job{job})
}

// ProvideQueueService picks the Redis queue when available, falling
// back to in-process execution.
func ProvideQueueService(rq *queue.RedisQueue, job *usecase.PipelineRunJob) queue.QueueService {
	if rq == nil {
		return usecase.NewInlineRunner(job)
	}
	return rq
}

// ProvideRunScheduler creates the periodic run scheduler.
func ProvideRunScheduler(q queue.QueueService, cfg *config.Config, l *applogger.Logger) *usecase.RunScheduler {
	return usecase.NewRunScheduler(q, cfg.Pipeline.Interval, l)
}

// ProvideBytesCache picks the response cache backend.
func ProvideBytesCache(cfg *config.Config) icache.BytesCache {
	if cfg.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideSignalsHandler creates the HTTP API handler.
func ProvideSignalsHandler(
	signals repository.SignalStore,
	events repository.EventStore,
	c icache.BytesCache,
	l *applogger.Logger,
) *api.SignalsHandler {
	h := api.NewSignalsHandler(signals, events, l)
	h.SetCache(c)
	return h
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.SignalsHandler,
	eventCollector *usecase.EventCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaEventsHandler,
	rq *queue.RedisQueue,
	scheduler *usecase.RunScheduler,
	pub repository.SignalPublisher,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, h, eventCollector, consumer, kh, rq, scheduler, pub, chClient)
}
