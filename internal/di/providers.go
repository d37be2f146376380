package di

import (
	"context"
	"fmt"
	"time"

	"TruthGate/internal/domain/repository"
	"TruthGate/internal/handler/api"
	mid "TruthGate/internal/middleware"
	internalrepo "TruthGate/internal/repository"
	"TruthGate/internal/services/calibration"
	"TruthGate/internal/services/risk"
	"TruthGate/internal/services/truth"
	"TruthGate/internal/usecase"
	pkgcache "TruthGate/pkg/cache"
	pkgch "TruthGate/pkg/clickhouse"
	"TruthGate/pkg/config"
	xhttp "TruthGate/pkg/http"
	pkgkafka "TruthGate/pkg/kafka"
	applogger "TruthGate/pkg/logger"
	"TruthGate/pkg/metrics"
	"TruthGate/pkg/queue"
	"TruthGate/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{
		Level:  "info",
		Format: format,
		Output: "stdout",
	})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache creates the shared Redis cache client.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideCacheService exposes the Redis cache through the Service interface.
func ProvideCacheService(c *pkgcache.RedisCache) pkgcache.Service {
	return c
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideKafkaProducer creates the Kafka producer for evaluation results.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideKafkaConsumer creates the opportunity intake consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideCandleStore creates the ClickHouse market data reader.
func ProvideCandleStore(chClient *pkgch.Client, log *applogger.Logger) repository.CandleStore {
	store := internalrepo.NewCHMarketStore(chClient)
	store.SetLogger(log)
	return store
}

// ProvideOpportunityLog creates the opportunity writer.
func ProvideOpportunityLog(chClient *pkgch.Client, log *applogger.Logger) repository.OpportunityLog {
	oplog := internalrepo.NewCHOpportunityLog(chClient)
	oplog.SetLogger(log)
	return oplog
}

// ProvideEvaluationHistory creates the evaluation history store.
func ProvideEvaluationHistory(chClient *pkgch.Client, log *applogger.Logger) repository.EvaluationHistory {
	history := internalrepo.NewCHEvaluationHistory(chClient)
	history.SetLogger(log)
	return history
}

// ProvideStateStore creates the shared operational state reader.
func ProvideStateStore(c pkgcache.Service, log *applogger.Logger) repository.StateStore {
	state := internalrepo.NewRedisStateStore(c)
	state.SetLogger(log)
	return state
}

// ProvideEvaluator creates the candle-walk evaluator.
func ProvideEvaluator(cfg *config.Config) *truth.Evaluator {
	return truth.NewEvaluator(truth.TieBreak(cfg.Evaluator.TieBreak))
}

// ProvideAggregator creates the calibration aggregator.
func ProvideAggregator(cfg *config.Config) *calibration.Aggregator {
	return calibration.NewAggregator(cfg.Calibration.MinSamples)
}

// ProvideDecisionFeed creates the WebSocket decision broadcast.
func ProvideDecisionFeed(m repository.Metrics, log *applogger.Logger) *mid.DecisionFeed {
	return mid.NewDecisionFeed(m, log)
}

// ProvideGateway creates the execution risk gateway.
func ProvideGateway(
	state repository.StateStore,
	c pkgcache.Service,
	m repository.Metrics,
	log *applogger.Logger,
	feed *mid.DecisionFeed,
	cfg *config.Config,
) *risk.Gateway {
	return risk.NewGateway(state, c, m, log,
		risk.WithCooldownWindow(cfg.Gateway.CooldownWindow),
		risk.WithIdempotencyTTL(cfg.Gateway.IdempotencyTTL),
		risk.WithStoreTimeout(cfg.Gateway.StoreTimeout),
		risk.WithDecisionSink(feed),
	)
}

// ProvideTruthRunner creates the evaluation sweep runner.
func ProvideTruthRunner(
	candles repository.CandleStore,
	history repository.EvaluationHistory,
	evaluator *truth.Evaluator,
	producer *pkgkafka.Producer,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.TruthRunner {
	return usecase.NewTruthRunner(candles, history, evaluator, m, log,
		usecase.WithEntryTolerance(cfg.Evaluator.EntryTolerance),
		usecase.WithATRPeriod(cfg.Evaluator.ATRPeriod),
		usecase.WithWorkers(cfg.Evaluator.Workers),
		usecase.WithRunnerStoreTimeout(cfg.Evaluator.StoreTimeout),
		usecase.WithResultPublisher(producer, cfg.Kafka.Topics.Evaluations),
	)
}

// ProvideCalibrationRunner creates the calibration recompute runner.
func ProvideCalibrationRunner(
	history repository.EvaluationHistory,
	state repository.StateStore,
	aggregator *calibration.Aggregator,
	c pkgcache.Service,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.CalibrationRunner {
	return usecase.NewCalibrationRunner(history, state, aggregator, c, m, log,
		usecase.WithLookback(time.Duration(cfg.Calibration.LookbackDays)*24*time.Hour),
	)
}

// ProvideIntakeHandler creates the Kafka opportunity intake.
func ProvideIntakeHandler(
	oplog repository.OpportunityLog,
	calib *usecase.CalibrationRunner,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) pkgkafka.MessageHandler {
	return usecase.NewOpportunityIntake(cfg.Kafka.Topics.Opportunities, oplog, calib, m, log)
}

// ProvideJobQueue creates the Redis job queue with the run jobs registered.
func ProvideJobQueue(
	log *applogger.Logger,
	c *pkgcache.RedisCache,
	truthRunner *usecase.TruthRunner,
	calib *usecase.CalibrationRunner,
) *queue.RedisQueue {
	return queue.NewRedisConsumer(log,
		&queue.QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: 30 * time.Second},
		c.Client(),
		[]queue.Job{
			usecase.NewTruthRunJob(truthRunner, log),
			usecase.NewCalibrationRunJob(calib),
		},
	)
}

// ProvideHTTPHandler creates the Echo API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	truthRunner *usecase.TruthRunner,
	calib *usecase.CalibrationRunner,
	gateway *risk.Gateway,
	feed *mid.DecisionFeed,
	chClient *pkgch.Client,
	redisCache *pkgcache.RedisCache,
) xhttp.Handler {
	h := api.NewTruthEchoHandler(log, truthRunner, calib, gateway, feed)
	h.AddHealthCheck("clickhouse", chClient)
	h.AddHealthCheck("redis", redisCache)
	return h
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpHandler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	intake pkgkafka.MessageHandler,
	jobQueue *queue.RedisQueue,
	feed *mid.DecisionFeed,
	truthRunner *usecase.TruthRunner,
	calib *usecase.CalibrationRunner,
	chClient *pkgch.Client,
	cache *pkgcache.RedisCache,
) *server.App {
	return server.New(cfg, log, httpHandler, consumer, producer, intake, jobQueue, feed, truthRunner, calib, chClient, cache)
}
