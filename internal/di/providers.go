package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"RegimeCast/internal/dbn"
	drepo "RegimeCast/internal/domain/repository"
	"RegimeCast/internal/handler/api"
	internalrepo "RegimeCast/internal/repository"
	"RegimeCast/internal/service/marketdata"
	"RegimeCast/internal/services/bars"
	"RegimeCast/internal/usecase"
	pkgcache "RegimeCast/pkg/cache"
	pkgch "RegimeCast/pkg/clickhouse"
	"RegimeCast/pkg/config"
	xhttp "RegimeCast/pkg/http"
	pkgkafka "RegimeCast/pkg/kafka"
	applogger "RegimeCast/pkg/logger"
	"RegimeCast/pkg/metrics"
	"RegimeCast/pkg/queue"
	"RegimeCast/pkg/server"

	kafkago "github.com/segmentio/kafka-go"
)

// Model bundles the network topology with its CPT store so wire can pass
// them around as one value.
type Model struct {
	Net  *dbn.Network
	CPTs *dbn.Store
}

// ProvideLogger creates the application logger with the diagnostics ring
// attached so recent warn/error events are queryable over the API.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	l, err := applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{Capacity: 256})
	return l, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideModel builds the stock network and its seeded CPT store from config.
func ProvideModel(cfg *config.Config) (*Model, error) {
	net, cpts, err := dbn.BuildStockModel(dbn.StockModelConfig{
		HiddenStates:  cfg.Model.HiddenStates,
		PriorStrength: cfg.Model.PriorStrength,
		PriorJitter:   cfg.Model.PriorJitter,
		Seed:          cfg.Model.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return &Model{Net: net, CPTs: cpts}, nil
}

// ProvideModelFactory returns a factory that builds fresh models for replay
// runs, isolated from the live engine.
func ProvideModelFactory(cfg *config.Config) usecase.ModelFactory {
	return func() (*dbn.Network, *dbn.Store, error) {
		return dbn.BuildStockModel(dbn.StockModelConfig{
			HiddenStates:  cfg.Model.HiddenStates,
			PriorStrength: cfg.Model.PriorStrength,
			PriorJitter:   cfg.Model.PriorJitter,
			Seed:          cfg.Model.Seed,
		})
	}
}

// ProvideClickHouseClient creates a ClickHouse client when enabled, nil
// otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
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

// ProvidePredictionStore creates the ClickHouse prediction store and runs its
// schema. Nil when ClickHouse is disabled.
func ProvidePredictionStore(chClient *pkgch.Client, l *applogger.Logger) (drepo.PredictionStore, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHousePredictions(chClient)
	if cs, ok := store.(*internalrepo.ClickHousePredictions); ok {
		cs.SetLogger(l)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = chClient.Close()
		return nil, fmt.Errorf("prediction schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer when brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
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

// ProvideKafkaConsumer creates a Kafka consumer when the observation stream
// is sourced from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, m drepo.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Stream.Source != "kafka" {
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
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafkago.Message, _ []byte, err error) {
			m.RecordError("kafka_consume")
			l.Warn("consume failed",
				applogger.String("topic", topic),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideRedisCache connects to Redis when enabled, nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheService layers an in-process cache over Redis when it is
// available, and falls back to the in-process cache alone otherwise.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideCheckpointStore picks Redis-backed checkpoints when Redis is
// enabled, a file store when a path is set, nil otherwise. The in-process
// cache fallback is deliberately not used here: checkpoints must survive a
// restart.
func ProvideCheckpointStore(cfg *config.Config, rc *pkgcache.RedisCache) drepo.CheckpointStore {
	if rc != nil {
		return internalrepo.NewRedisCheckpoints(rc, cfg.Checkpoint.Key)
	}
	if cfg.Checkpoint.Path != "" {
		return internalrepo.NewFileCheckpoints(cfg.Checkpoint.Path)
	}
	return nil
}

// ProvidePredictionSinks assembles every configured outbound prediction path:
// the ClickHouse store, the Kafka topic, and the webhook.
func ProvidePredictionSinks(
	cfg *config.Config,
	store drepo.PredictionStore,
	producer *pkgkafka.Producer,
) []drepo.PredictionSink {
	var sinks []drepo.PredictionSink
	if store != nil {
		sinks = append(sinks, internalrepo.NewStoreSink(store))
	}
	if producer != nil && cfg.Kafka.PredictionTopic != "" {
		sinks = append(sinks, internalrepo.NewKafkaSink(producer, cfg.Kafka.PredictionTopic))
	}
	if cfg.Webhook.URL != "" {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Webhook.Timeout))
		sinks = append(sinks, internalrepo.NewWebhookSink(client, cfg.Webhook.URL))
	}
	return sinks
}

// ProvideObservationSource builds the configured stream: a historical CSV
// file, a Kafka topic, or live websocket ticks folded into bars.
func ProvideObservationSource(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	m drepo.Metrics,
) (drepo.ObservationSource, error) {
	switch cfg.Stream.Source {
	case "csv":
		return bars.NewCSVSource(cfg.Data.BarsPath, cfg.Data.Symbol, dbn.NodePriceMove), nil
	case "kafka":
		if consumer == nil {
			return nil, fmt.Errorf("kafka source requires a consumer")
		}
		return usecase.NewKafkaSource(consumer, cfg.Kafka.ObservationTopic, m), nil
	case "websocket":
		stream := marketdata.New(
			cfg.Market.APIKey,
			cfg.Market.WebSocketURL,
			cfg.Market.Symbols,
			cfg.Market.ReconnectDelay,
			cfg.Market.PingInterval,
		)
		tf := drepo.NormalizeTimeframe(cfg.Data.Timeframe)
		return marketdata.NewSource(stream, tf, cfg.Data.Symbol, dbn.NodePriceMove, m), nil
	default:
		return nil, fmt.Errorf("unknown stream source %q", cfg.Stream.Source)
	}
}

// ProvideRunner wires the stream runner around the live model.
func ProvideRunner(
	cfg *config.Config,
	model *Model,
	sinks []drepo.PredictionSink,
	ckpts drepo.CheckpointStore,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.StreamRunner, error) {
	metric, err := dbn.ParseConfidenceMetric(cfg.Model.ConfidenceMetric)
	if err != nil {
		return nil, err
	}
	return usecase.NewStreamRunner(model.Net, model.CPTs, usecase.RunnerConfig{
		Node:               dbn.NodePriceMove,
		Horizon:            cfg.Model.ForecastHorizon,
		Metric:             metric,
		Decay:              cfg.Model.Decay,
		CheckpointInterval: cfg.Stream.CheckpointInterval,
		ConvergenceWindow:  cfg.Stream.ConvergenceWindow,
	}, sinks, ckpts, m, l)
}

// ProvideExporter creates the artifact exporter for the live runner.
func ProvideExporter(runner *usecase.StreamRunner, c pkgcache.Service, cfg *config.Config) *usecase.Exporter {
	return usecase.NewExporter(runner, c, cfg.Data.Symbol)
}

// ProvideReplayer creates the historical replay use case.
func ProvideReplayer(
	cfg *config.Config,
	factory usecase.ModelFactory,
	m drepo.Metrics,
	l *applogger.Logger,
) (*usecase.Replayer, error) {
	metric, err := dbn.ParseConfidenceMetric(cfg.Model.ConfidenceMetric)
	if err != nil {
		return nil, err
	}
	return usecase.NewReplayer(factory, dbn.NodePriceMove, cfg.Data.Symbol, metric, m, l), nil
}

// ProvideQueuePublisher creates the Redis-backed job publisher. Nil when
// Redis is disabled; the replay endpoint degrades gracefully.
func ProvideQueuePublisher(rc *pkgcache.RedisCache, l *applogger.Logger) queue.QueueService {
	if rc == nil {
		return nil
	}
	return queue.NewRedisPublisher(l, rc.Client())
}

// ProvideQueueWorker creates the Redis job consumer with the replay job
// registered. Nil when Redis is disabled.
func ProvideQueueWorker(
	rc *pkgcache.RedisCache,
	replayer *usecase.Replayer,
	c pkgcache.Service,
	l *applogger.Logger,
) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	job := usecase.NewReplayJob(replayer, c, l)
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    1,
		QueueSize:  64,
		RetryLimit: 3,
		RetryDelay: 2 * time.Second,
	}, rc.Client(), []queue.Job{job})
}

// ProvideHandler creates the Echo handler for the engine API.
func ProvideHandler(
	l *applogger.Logger,
	runner *usecase.StreamRunner,
	exporter *usecase.Exporter,
	store drepo.PredictionStore,
	q queue.QueueService,
	c pkgcache.Service,
) xhttp.Handler {
	return api.NewEngineHandler(l, runner, exporter, store, q, c)
}

// NewOfflineReplayer builds a replayer with no external infrastructure, for
// the replay and export CLI modes.
func NewOfflineReplayer(cfg *config.Config) (*usecase.Replayer, error) {
	l, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	return ProvideReplayer(cfg, ProvideModelFactory(cfg), ProvideMetrics(), l)
}

// NewPriorArtifact serializes the configured model before any learning.
func NewPriorArtifact(cfg *config.Config) (*dbn.Artifact, error) {
	model, err := ProvideModel(cfg)
	if err != nil {
		return nil, err
	}
	return dbn.Export(cfg.Data.Symbol, model.Net, model.CPTs), nil
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.StreamRunner,
	source drepo.ObservationSource,
	handler xhttp.Handler,
	worker *queue.RedisQueue,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	rc *pkgcache.RedisCache,
) *server.App {
	app := server.New(cfg, l, runner, source, handler)
	app.SetWorker(worker)
	app.AddCloser("clickhouse", func() error {
		if chClient == nil {
			return nil
		}
		return chClient.Close()
	})
	app.AddCloser("kafka producer", func() error {
		if producer == nil {
			return nil
		}
		return producer.Close()
	})
	app.AddCloser("redis", func() error {
		if rc == nil {
			return nil
		}
		return rc.Close()
	})
	return app
}
