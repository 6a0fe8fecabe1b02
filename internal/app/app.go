// Package app wires together all dependencies and runs the search service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trademart/search-service/internal/config"
	"github.com/trademart/search-service/internal/event"
	handler "github.com/trademart/search-service/internal/handler/http"
	"github.com/trademart/search-service/internal/index"
	esindex "github.com/trademart/search-service/internal/index/elasticsearch"
	"github.com/trademart/search-service/internal/index/memory"
	"github.com/trademart/search-service/internal/service"
	"github.com/trademart/search-service/pkg/database"
	"github.com/trademart/search-service/pkg/health"
	pkgkafka "github.com/trademart/search-service/pkg/kafka"
	"github.com/trademart/search-service/pkg/tracing"
)

// App holds the running components of the search service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     index.Engine
	esEngine   *esindex.Engine
	consumers  []*pkgkafka.Consumer
	dlq        *pkgkafka.DLQProducer
	redis      *redis.Client
	httpServer *http.Server

	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.TracingConfig())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Search engine selection.
	var eng index.Engine
	var esEng *esindex.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		esEng, err = esindex.New(esindex.Config{
			Addresses:   cfg.ElasticsearchURLs,
			Username:    cfg.ElasticsearchUsername,
			Password:    cfg.ElasticsearchPassword,
			IndexPrefix: cfg.ElasticsearchPrefix,
			MaxRetries:  cfg.ElasticsearchMaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index_prefix", cfg.ElasticsearchPrefix),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory engine initialized")
	}

	// Service layer.
	searchService := service.NewSearchService(eng, logger)
	indexer := service.NewIndexer(eng, logger)

	// Event deduplication store. Redis survives restarts; the in-process
	// store only covers redeliveries within one consumer session.
	var redisClient *redis.Client
	var idemStore pkgkafka.IdempotencyStore
	if cfg.RedisEnabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		idemStore = pkgkafka.NewRedisIdempotencyStore(redisClient, "search:idem", cfg.IdempotencyTTL)
	} else {
		idemStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}

	eventConsumer := event.NewConsumer(indexer, logger)
	handle := pkgkafka.IdempotentHandler(idemStore, eventConsumer.Handle, logger)

	var dlq *pkgkafka.DLQProducer
	if cfg.KafkaDLQEnabled {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	}

	// One consumer per topic; the group id keeps replicas partition-balanced.
	var consumers []*pkgkafka.Consumer
	for _, eventType := range event.Types() {
		entity, action, _ := strings.Cut(eventType, ".")
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    pkgkafka.Topic(entity, action),
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, handle, logger)
		if dlq != nil {
			c = c.WithDLQ(dlq)
		}
		consumers = append(consumers, c)
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(consumers)),
		slog.Bool("dlq_enabled", cfg.KafkaDLQEnabled),
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("index", eng.Ping)
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(searchService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		engine:         eng,
		esEngine:       esEng,
		consumers:      consumers,
		dlq:            dlq,
		redis:          redisClient,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context
// is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	// Consumers must not start before the indices exist, otherwise the
	// first events race index creation.
	if a.esEngine != nil {
		if err := a.esEngine.WaitHealthy(ctx); err != nil {
			return fmt.Errorf("wait for elasticsearch: %w", err)
		}
	}
	if err := a.engine.EnsureIndices(ctx); err != nil {
		return fmt.Errorf("ensure indices: %w", err)
	}

	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.tracerShutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
