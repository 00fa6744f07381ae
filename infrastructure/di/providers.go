package di

import (
	"context"
	"fmt"
	"time"

	"locallens/application/feed"
	"locallens/application/mutations"
	"locallens/application/offline"
	"locallens/application/polling"
	"locallens/application/ports"
	"locallens/application/services"
	"locallens/application/session"
	domainconfig "locallens/domain/config"
	"locallens/domain/core/validators"
	"locallens/infrastructure/config"
	"locallens/infrastructure/connectivity"
	"locallens/infrastructure/messaging/eventbridge"
	"locallens/infrastructure/persistence"
	"locallens/infrastructure/persistence/dynamodb"
	"locallens/infrastructure/persistence/memory"
	"locallens/infrastructure/realtime"
	"locallens/infrastructure/storage"
	"locallens/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BackendStore is the undecorated remote store selected by configuration.
type BackendStore interface {
	ports.RemoteStore
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// ProvideDomainConfig exposes the business rules loaded with the config.
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	if cfg.Domain == nil {
		return domainconfig.LoadDomainConfig(cfg.Environment)
	}
	return cfg.Domain
}

// ProvideMetrics creates the Prometheus collector.
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("locallens")
}

// ProvideTracerProvider returns the global provider when tracing is enabled
// and a no-op provider otherwise.
func ProvideTracerProvider(cfg *config.Config) trace.TracerProvider {
	if !cfg.EnableTracing {
		return noop.NewTracerProvider()
	}
	return otel.GetTracerProvider()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideBackendStore selects DynamoDB or the in-memory store.
func ProvideBackendStore(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) (BackendStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory remote store, data is lost on exit")
		return memory.NewStore(), nil
	case "dynamodb":
		client := dynamodb.NewClient(awsCfg, cfg.DynamoDBEndpoint)
		return dynamodb.NewStore(client, dynamodb.Options{
			TableName:          cfg.DynamoDBTable,
			GSI1IndexName:      cfg.GSI1IndexName,
			GSI2IndexName:      cfg.GSI2IndexName,
			WatchInterval:      cfg.WatchInterval,
			WatchRatePerSecond: cfg.WatchRatePerSecond,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// ProvideRemoteStore decorates the backend with metrics and tracing.
func ProvideRemoteStore(backend BackendStore, metrics *observability.Collector, tp trace.TracerProvider) ports.RemoteStore {
	return persistence.NewInstrumentedStore(backend, metrics, tp)
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured.
func ProvideEventPublisher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NewNoopPublisher(logger)
	}
	client := awseventbridge.NewFromConfig(awsCfg)
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
}

// ProvideKeyValueStore opens the durable storage behind the offline queue.
func ProvideKeyValueStore(cfg *config.Config, logger *zap.Logger) (ports.KeyValueStore, func(), error) {
	switch cfg.OfflineStorage {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil
	case "file":
		store, err := storage.NewFileStore(cfg.OfflineFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "redis":
		store := storage.NewRedisStore(storage.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.RedisPrefix)
		cleanup := func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close redis", zap.Error(err))
			}
		}
		return store, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown offline storage %q", cfg.OfflineStorage)
	}
}

// ProvideSession creates the device session.
func ProvideSession(dc *domainconfig.DomainConfig) *session.Session {
	return session.New(dc.DefaultRadiusKm)
}

// ProvideConnectivity starts online; the probe loop or the API corrects it.
func ProvideConnectivity(logger *zap.Logger) *connectivity.Monitor {
	return connectivity.NewMonitor(true, logger)
}

func ProvideContentValidator(dc *domainconfig.DomainConfig) *validators.ContentValidator {
	return validators.NewContentValidator(dc)
}

func ProvideQueryEngine(store ports.RemoteStore, dc *domainconfig.DomainConfig, logger *zap.Logger) *feed.QueryEngine {
	return feed.NewQueryEngine(store, dc.PageSize, time.Now, logger)
}

func ProvideRealtimeMerger(
	store ports.RemoteStore,
	cache *feed.Cache,
	sess *session.Session,
	dc *domainconfig.DomainConfig,
	logger *zap.Logger,
) *feed.RealtimeMerger {
	return feed.NewRealtimeMerger(store, store, cache, sess, dc.LiveCandidateCap, dc.VoteLookupParallel, time.Now, logger)
}

func ProvideFeedService(
	engine *feed.QueryEngine,
	merger *feed.RealtimeMerger,
	cache *feed.Cache,
	store ports.RemoteStore,
	sess *session.Session,
	dc *domainconfig.DomainConfig,
	logger *zap.Logger,
) *feed.Service {
	return feed.NewService(engine, merger, cache, store, sess, dc.VoteLookupParallel, logger)
}

func ProvideCoordinator(
	store ports.RemoteStore,
	cache *feed.Cache,
	sess *session.Session,
	validator *validators.ContentValidator,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	dc *domainconfig.DomainConfig,
	logger *zap.Logger,
) (*mutations.Coordinator, func()) {
	coord := mutations.NewCoordinator(store, store, store, cache, sess, validator, publisher, metrics, dc.ReconcileTimeout, logger)
	return coord, coord.Close
}

func ProvideNoteService(
	store ports.RemoteStore,
	cache *feed.Cache,
	sess *session.Session,
	validator *validators.ContentValidator,
	publisher ports.EventPublisher,
	dc *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.NoteService {
	return services.NewNoteService(store, store, cache, sess, validator, publisher, dc.PageSize, logger)
}

func ProvideCommentService(store ports.RemoteStore, cache *feed.Cache, dc *domainconfig.DomainConfig, logger *zap.Logger) *services.CommentService {
	return services.NewCommentService(store, cache, dc.CommentPageSize, logger)
}

func ProvideOfflineQueue(
	kv ports.KeyValueStore,
	notes *services.NoteService,
	monitor *connectivity.Monitor,
	dc *domainconfig.DomainConfig,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*offline.Queue, func()) {
	queue := offline.NewQueue(kv, notes, monitor, offline.Options{
		StorageKey: dc.OfflineStorageKey,
		Retention:  dc.OfflineRetention,
	}, metrics, logger)
	return queue, queue.Wait
}

func ProvideSubmitService(
	notes *services.NoteService,
	queue *offline.Queue,
	monitor *connectivity.Monitor,
	logger *zap.Logger,
) *services.SubmitService {
	return services.NewSubmitService(notes, queue, monitor, logger)
}

func ProvidePoller(
	sess *session.Session,
	cache *feed.Cache,
	dc *domainconfig.DomainConfig,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*polling.Poller, func()) {
	poller := polling.NewPoller(sess, cache, dc.PollInterval, dc.MovementThresholdM, metrics, logger)
	return poller, poller.Stop
}

// ProvideChangeFeed returns nil when no change feed URL is configured or
// the backend has no live queries to wake.
func ProvideChangeFeed(backend BackendStore, cfg *config.Config, logger *zap.Logger) *realtime.ChangeFeed {
	if cfg.ChangeFeedURL == "" {
		return nil
	}
	notifier, ok := backend.(realtime.Notifier)
	if !ok {
		logger.Info("Change feed ignored, store backend has no live queries")
		return nil
	}
	return realtime.NewChangeFeed(cfg.ChangeFeedURL, notifier, cfg.ChangeFeedReconnect, logger)
}
