package di

import (
	"context"
	"fmt"
	"time"

	"PulseTrade/internal/account"
	"PulseTrade/internal/broker"
	domrepo "PulseTrade/internal/domain/repository"
	"PulseTrade/internal/engine"
	"PulseTrade/internal/events"
	"PulseTrade/internal/handler/api"
	"PulseTrade/internal/indicator"
	"PulseTrade/internal/journal"
	"PulseTrade/internal/mtf"
	"PulseTrade/internal/position"
	"PulseTrade/internal/risk"
	"PulseTrade/internal/scanner"
	"PulseTrade/internal/series"
	"PulseTrade/internal/stream"
	"PulseTrade/internal/usecase"
	"PulseTrade/internal/volume"
	pkgcache "PulseTrade/pkg/cache"
	pkgch "PulseTrade/pkg/clickhouse"
	"PulseTrade/pkg/config"
	pkgkafka "PulseTrade/pkg/kafka"
	applogger "PulseTrade/pkg/logger"
	"PulseTrade/pkg/metrics"
	"PulseTrade/pkg/server"
)

// ProvideLogger creates the application logger. Production gets JSON,
// everything else console output.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "console", Output: "stdout"}
	if cfg.Environment == "production" {
		lc.Format = "json"
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideStore creates the in-memory sample store.
func ProvideStore() *series.Store {
	return series.NewStore(series.DefaultCapacity)
}

// ProvideScanner creates the opportunity scanner with YAML overrides on
// top of the built-in defaults.
func ProvideScanner(cfg *config.Config, store *series.Store, m domrepo.Metrics) *scanner.Scanner {
	sc := scanner.DefaultConfig()
	if cfg.Scanner.MinConfidence > 0 {
		sc.MinConfidence = cfg.Scanner.MinConfidence
	}
	if cfg.Scanner.TargetProfit > 0 {
		sc.TargetProfit = cfg.Scanner.TargetProfit
	}
	if cfg.Scanner.StopLoss > 0 {
		sc.StopLoss = cfg.Scanner.StopLoss
	}
	return scanner.New(store, sc, m)
}

// ProvideCalculator creates the per-timeframe indicator calculator.
func ProvideCalculator(cfg *config.Config) engine.Calculator {
	ic := indicator.DefaultConfig()
	if cfg.Indicator.Oversold > 0 {
		ic.Oversold = cfg.Indicator.Oversold
	}
	if cfg.Indicator.Overbought > 0 {
		ic.Overbought = cfg.Indicator.Overbought
	}
	return indicator.New(ic)
}

// ProvideValidator creates the multi-timeframe consensus validator.
func ProvideValidator(cfg *config.Config) *mtf.Validator {
	vc := mtf.DefaultConfig()
	if cfg.Validation.Primary != "" {
		vc.Primary = domrepo.NormalizeTimeframe(cfg.Validation.Primary)
	}
	if len(cfg.Validation.Confirmations) > 0 {
		tfs := make([]domrepo.Timeframe, 0, len(cfg.Validation.Confirmations))
		for _, s := range cfg.Validation.Confirmations {
			tfs = append(tfs, domrepo.NormalizeTimeframe(s))
		}
		vc.Confirmations = tfs
	}
	if len(cfg.Validation.Weights) > 0 {
		w := make(map[domrepo.Timeframe]float64, len(cfg.Validation.Weights))
		for k, v := range cfg.Validation.Weights {
			w[domrepo.NormalizeTimeframe(k)] = v
		}
		vc.Weights = w
	}
	if len(cfg.Validation.Decay) > 0 {
		d := make(map[domrepo.Timeframe]float64, len(cfg.Validation.Decay))
		for k, v := range cfg.Validation.Decay {
			d[domrepo.NormalizeTimeframe(k)] = v
		}
		vc.Decay = d
	}
	if cfg.Validation.MinConfirmation > 0 {
		vc.MinConfirmation = cfg.Validation.MinConfirmation
	}
	return mtf.New(vc)
}

// ProvideVolumeFilter creates the volume confirmation filter.
func ProvideVolumeFilter() *volume.Filter {
	return volume.New(volume.DefaultConfig())
}

// ProvideRateBudget creates the shared broker request budget.
func ProvideRateBudget(cfg *config.Config, m domrepo.Metrics) *risk.RateBudget {
	return risk.NewRateBudget(cfg.Broker.RateLimit.Limit, cfg.Broker.RateLimit.Window, m)
}

// ProvideRiskController creates the risk controller.
func ProvideRiskController(cfg *config.Config, m domrepo.Metrics) *risk.Controller {
	return risk.NewController(risk.Config{
		DailyLossLimit:         cfg.Risk.DailyLossLimit,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
	}, m)
}

// ProvideBroker creates the configured brokerage client wrapped in the
// shared rate budget.
func ProvideBroker(cfg *config.Config, budget *risk.RateBudget) (domrepo.Broker, error) {
	var b domrepo.Broker
	switch cfg.Broker.Mode {
	case "rest":
		b = broker.NewRESTClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.Timeout)
	case "paper":
		b = broker.NewPaper(cfg.Broker.PaperCash)
	default:
		return nil, fmt.Errorf("broker mode %q not supported", cfg.Broker.Mode)
	}
	return broker.NewRateLimited(b, budget), nil
}

// ProvideStream creates the WebSocket market stream, or nil when no
// stream is configured (Kafka ticks remain available as an ingest path).
func ProvideStream(cfg *config.Config, log *applogger.Logger) domrepo.MarketStream {
	if cfg.Stream.WebSocketURL == "" {
		return nil
	}
	return stream.New(stream.Config{
		APIKey:         cfg.Stream.APIKey,
		WebsocketURL:   cfg.Stream.WebSocketURL,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
	}, cfg.Engine.Symbols, log)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
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

// ProvideRecorder creates the in-memory event ring the status API reads.
func ProvideRecorder() *events.Recorder {
	return events.NewRecorder(256)
}

// producerPublisher adapts the Kafka producer to the log collector's
// Publisher interface.
type producerPublisher struct {
	p *pkgkafka.Producer
}

func (a producerPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return a.p.Publish(ctx, topic, nil, payload)
}

// ProvideEventSink fans lifecycle events out to the log, the in-memory
// recorder, and Kafka when a producer is configured. With a logs topic
// configured it also attaches the aggregating error-log collector.
func ProvideEventSink(cfg *config.Config, log *applogger.Logger, rec *events.Recorder, producer *pkgkafka.Producer) domrepo.EventSink {
	sinks := []domrepo.EventSink{events.NewLogSink(log), rec}
	if producer != nil {
		sinks = append(sinks, events.NewKafkaSink(producer, cfg.Kafka.EventsTopic, log))
		if cfg.Kafka.LogsTopic != "" {
			log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          cfg.Kafka.LogsTopic,
				Publisher:      producerPublisher{p: producer},
			})
		}
	}
	return events.NewFanout(sinks...)
}

// ProvideClickHouseClient creates a ClickHouse client with the trade
// journal schema applied, or nil when ClickHouse is disabled.
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, journal.Schema(cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideJournal creates the trade journal, or nil without ClickHouse.
func ProvideJournal(cfg *config.Config, client *pkgch.Client) domrepo.TradeJournal {
	if client == nil {
		return nil
	}
	return journal.New(client.DB(), cfg.ClickHouse.Table)
}

// ProvideAccountCache creates the TTL account snapshot cache, backed by
// Redis when it is enabled.
func ProvideAccountCache(cfg *config.Config, b domrepo.Broker, log *applogger.Logger) (*account.Cache, error) {
	var store pkgcache.Service
	if cfg.Redis.Enabled {
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
			pkgcache.WithRedisPrefix("pulsetrade"),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		store = pkgcache.NewLayeredCache(rc)
	}
	return account.NewCache(b, store, cfg.Redis.TTL, log), nil
}

// ProvideManager creates the position lifecycle manager.
func ProvideManager(
	cfg *config.Config,
	b domrepo.Broker,
	ctl *risk.Controller,
	sink domrepo.EventSink,
	log *applogger.Logger,
	j domrepo.TradeJournal,
	m domrepo.Metrics,
) *position.Manager {
	pc := position.DefaultConfig()
	if cfg.Position.MaxHold > 0 {
		pc.MaxHold = cfg.Position.MaxHold
	}
	if cfg.Position.FillTimeout > 0 {
		pc.FillTimeout = cfg.Position.FillTimeout
	}
	if cfg.Position.FillPollInterval > 0 {
		pc.FillPollInterval = cfg.Position.FillPollInterval
	}
	if cfg.Position.MaxRetries > 0 {
		pc.MaxRetries = cfg.Position.MaxRetries
	}
	if cfg.Position.RetryBackoff > 0 {
		pc.RetryBackoff = cfg.Position.RetryBackoff
	}
	if cfg.Position.TrailActivation > 0 {
		pc.TrailActivation = cfg.Position.TrailActivation
	}
	if cfg.Position.TrailDistance > 0 {
		pc.TrailDistance = cfg.Position.TrailDistance
	}
	if cfg.Position.VolatilityFloor > 0 {
		pc.VolatilityFloor = cfg.Position.VolatilityFloor
	}

	opts := []position.Option{position.WithMetrics(m)}
	if j != nil {
		opts = append(opts, position.WithJournal(j))
	}
	return position.NewManager(pc, b, ctl, sink, log, opts...)
}

// ProvideEngine assembles the trading engine.
func ProvideEngine(
	cfg *config.Config,
	store *series.Store,
	sc *scanner.Scanner,
	calc engine.Calculator,
	validator *mtf.Validator,
	volFilter *volume.Filter,
	mgr *position.Manager,
	ctl *risk.Controller,
	b domrepo.Broker,
	ms domrepo.MarketStream,
	acct *account.Cache,
	sink domrepo.EventSink,
	m domrepo.Metrics,
	log *applogger.Logger,
) *engine.Engine {
	ec := engine.DefaultConfig(cfg.Engine.Symbols)
	if cfg.Engine.Notional > 0 {
		ec.Notional = cfg.Engine.Notional
	}
	if cfg.Engine.ScanInterval > 0 {
		ec.ScanInterval = cfg.Engine.ScanInterval
	}
	if cfg.Engine.ExitInterval > 0 {
		ec.ExitInterval = cfg.Engine.ExitInterval
	}
	if cfg.Engine.RefreshInterval > 0 {
		ec.RefreshInterval = cfg.Engine.RefreshInterval
	}
	if cfg.Engine.DailyResetTime != "" {
		ec.DailyResetTime = cfg.Engine.DailyResetTime
	}
	if cfg.Engine.ErrorBudget > 0 {
		ec.ErrorBudget = cfg.Engine.ErrorBudget
	}
	return engine.New(ec, engine.Deps{
		Store:     store,
		Scanner:   sc,
		Calc:      calc,
		Validator: validator,
		VolFilter: volFilter,
		Manager:   mgr,
		RiskCtl:   ctl,
		Broker:    b,
		Stream:    ms,
		Account:   acct,
		Events:    sink,
		Metrics:   m,
		Log:       log,
	})
}

// ProvideTicksHandler creates the Kafka ticks ingest handler.
func ProvideTicksHandler(cfg *config.Config, store *series.Store, m domrepo.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, store, m)
}

// ProvideKafkaConsumer creates a Kafka consumer for the ticks topic, or
// nil when Kafka or the topic is not configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.TicksTopic == "" {
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

// ProvideStatusHandler creates the HTTP status handler.
func ProvideStatusHandler(
	log *applogger.Logger,
	eng *engine.Engine,
	rec *events.Recorder,
	j domrepo.TradeJournal,
	ms domrepo.MarketStream,
) *api.StatusHandler {
	return api.NewStatusHandler(log, eng, rec, j, ms)
}

// ProvideApp creates the application server. The event sink owns the
// Kafka producer, so the app closes the sink rather than the producer.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	eng *engine.Engine,
	handler *api.StatusHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	sink domrepo.EventSink,
) *server.App {
	return server.New(cfg, log, eng, handler, consumer, kh, chClient, sink)
}
