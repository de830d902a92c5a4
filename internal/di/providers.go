package di

import (
	"fmt"
	"strings"

	"BankStats/internal/domain/repository"
	"BankStats/internal/domain/service"
	"BankStats/internal/handler/api"
	internalrepo "BankStats/internal/repository"
	"BankStats/internal/scheduler"
	"BankStats/internal/service/alphavantage"
	"BankStats/internal/service/ratelimit"
	"BankStats/internal/usecase"
	"BankStats/pkg/cache"
	"BankStats/pkg/config"
	xhttp "BankStats/pkg/http"
	pkgkafka "BankStats/pkg/kafka"
	applogger "BankStats/pkg/logger"
	"BankStats/pkg/metrics"
	"BankStats/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideCache creates the shared cache: in process, Redis, or Redis behind an in-process L1.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Addr),
		cache.WithRedisPassword(cfg.Cache.Password),
		cache.WithRedisDB(cfg.Cache.DB),
		cache.WithRedisPrefix(cfg.Cache.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Backend == "layered" {
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MaxSize),
			cache.WithLayeredMemoryTTL(cfg.Cache.L1TTL),
		), nil
	}
	return rc, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideKafkaMetrics creates the producer and consumer collectors.
func ProvideKafkaMetrics() *pkgkafka.Metrics {
	return pkgkafka.NewMetrics(prometheus.DefaultRegisterer)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, km *pkgkafka.Metrics) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(km,
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the refresh command consumer, or nil when Kafka
// is disabled or no command topic is configured.
func ProvideKafkaConsumer(cfg *config.Config, logger *applogger.Logger, km *pkgkafka.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.RefreshTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(logger, km,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.LoggingHook{Logger: logger})
	return consumer, nil
}

// ProvideCallBudget limits provider calls per day, in a local file or in the shared cache.
func ProvideCallBudget(cfg *config.Config, c cache.Service) service.CallBudget {
	var counter ratelimit.Counter
	switch cfg.Budget.Backend {
	case "cache":
		counter = ratelimit.NewCacheCounter(c, "budget")
	default:
		counter = ratelimit.NewFileCounter(cfg.Budget.File)
	}
	return ratelimit.NewDailyBudget(cfg.Budget.DailyLimit, counter)
}

// ProvidePriceFetcher creates the Alpha Vantage client.
func ProvidePriceFetcher(cfg *config.Config, budget service.CallBudget, m repository.Metrics, logger *applogger.Logger) service.PriceFetcher {
	return alphavantage.New(cfg.AlphaVantage.APIKey, budget,
		alphavantage.WithEndpoint(cfg.AlphaVantage.Endpoint),
		alphavantage.WithOutputSize(cfg.AlphaVantage.OutputSize),
		alphavantage.WithTimeout(cfg.AlphaVantage.Timeout),
		alphavantage.WithMetrics(m),
		alphavantage.WithLogger(logger),
	)
}

// ProvidePriceStore creates the CSV price store under the data directory.
func ProvidePriceStore(cfg *config.Config, logger *applogger.Logger) (repository.PriceStore, error) {
	store, err := internalrepo.NewCSVPriceStore(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("price store: %w", err)
	}
	return store, nil
}

// ProvideReportPublisher publishes reports to Kafka, or drops them when Kafka is disabled.
func ProvideReportPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ReportPublisher {
	if producer == nil || cfg.Kafka.ReportsTopic == "" {
		return internalrepo.NopReportPublisher{}
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportsTopic)
}

func ProvideAnalyticsService(
	cfg *config.Config,
	store repository.PriceStore,
	fetcher service.PriceFetcher,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.AnalyticsService {
	return usecase.NewAnalyticsService(store, logger,
		usecase.WithFetcher(fetcher),
		usecase.WithMetrics(m),
		usecase.WithTickers(cfg.AlphaVantage.Tickers),
		usecase.WithPredictTicker(strings.ToUpper(cfg.Analysis.PredictTicker)),
		usecase.WithWindow(cfg.Analysis.MAWindow),
		usecase.WithSplit(cfg.Analysis.TestRatio, cfg.Analysis.Seed),
	)
}

func ProvideRefreshService(
	fetcher service.PriceFetcher,
	store repository.PriceStore,
	analytics *usecase.AnalyticsService,
	publisher repository.ReportPublisher,
	c cache.Service,
	logger *applogger.Logger,
) *usecase.RefreshService {
	return usecase.NewRefreshService(fetcher, store, analytics, publisher, c, logger)
}

func ProvideResponseCache(cfg *config.Config, c cache.Service, logger *applogger.Logger) *usecase.ResponseCache {
	return usecase.NewResponseCache(c, cfg.Cache.TTL, logger)
}

// ProvideRefreshCommandHandler handles refresh commands arriving on Kafka.
func ProvideRefreshCommandHandler(cfg *config.Config, refresh *usecase.RefreshService, logger *applogger.Logger) *usecase.RefreshCommandHandler {
	return usecase.NewRefreshCommandHandler(cfg.Kafka.RefreshTopic, refresh, logger)
}

func ProvideScheduler(refresh *usecase.RefreshService, logger *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(refresh, logger)
}

func ProvideAnalyticsHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	analytics *usecase.AnalyticsService,
	refresh *usecase.RefreshService,
	rc *usecase.ResponseCache,
	budget service.CallBudget,
) *api.AnalyticsHandler {
	return api.NewAnalyticsHandler(logger, analytics, refresh,
		api.WithResponseCache(rc),
		api.WithRateLimit(ratelimit.New(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSecond)),
		api.WithBudget(budget),
	)
}

func ProvideHTTPServer(cfg *config.Config, logger *applogger.Logger, h *api.AnalyticsHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetrics(metricsPath, nil),
		xhttp.WithLogger(logger),
	)
}

// ProvideApp assembles the application and attaches the Kafka log collector.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	consumer *pkgkafka.Consumer,
	cmd *usecase.RefreshCommandHandler,
	producer *pkgkafka.Producer,
	c cache.Service,
) *server.App {
	opts := []server.Option{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithCloser("cache", c),
	}
	if cfg.Scheduler.Enabled {
		opts = append(opts, server.WithScheduler(sched, cfg.Scheduler.RefreshAt, cfg.Scheduler.RunOnStart))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, cmd))
	}
	if producer != nil {
		// closed last, after the log collector has flushed through it
		opts = append([]server.Option{server.WithCloser("kafka producer", producer)}, opts...)
		if cfg.Kafka.LogCollector.Enabled && cfg.Kafka.LogsTopic != "" {
			logger.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   cfg.Kafka.LogCollector.FlushInterval,
				CountThreshold: cfg.Kafka.LogCollector.CountThreshold,
				Topic:          cfg.Kafka.LogsTopic,
				Publisher:      producer,
			})
		}
	}
	return server.New(logger, httpServer, opts...)
}
