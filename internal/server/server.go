package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"postback-relay/api/handlers"
	"postback-relay/api/router"
	"postback-relay/config"
	"postback-relay/internal/pipeline"
	"postback-relay/internal/queue"
	"postback-relay/internal/relay"
	"postback-relay/internal/schema"
	"postback-relay/internal/storage"
	"postback-relay/internal/templates"
	"postback-relay/pkg/errs"
	"postback-relay/pkg/logger"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *logger.Logger
	store         storage.Store
	scheduler     relay.Scheduler
	deliveries    pond.Pool
	cancel        context.CancelFunc
}

func NewServer(cfg *config.Config, logger *logger.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.Desugar()

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		cancel()
		return nil, err
	}

	registry := templates.Default()
	scheduler, deliveries, err := newScheduler(ctx, cfg, store, registry, log)
	if err != nil {
		cancel()
		_ = store.Close(context.Background())
		return nil, err
	}

	schemas, err := schema.NewValidator()
	if err != nil {
		cancel()
		scheduler.Close()
		_ = store.Close(context.Background())
		return nil, err
	}

	svc := pipeline.NewService(store, registry, scheduler, log)

	limiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	r := router.Setup(log, router.Handlers{
		Postback: handlers.NewPostbackHandler(log, svc, limiter, cfg.Security.Debug),
		Admin:    handlers.NewAdminHandler(log, store, schemas, registry, svc),
	}, cfg)

	// Create metrics server
	metricsAddr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		metricsServer: metricsServer,
		logger:        logger,
		store:         store,
		scheduler:     scheduler,
		deliveries:    deliveries,
		cancel:        cancel,
	}, nil
}

// OpenStore opens the configured store, wrapped in the Redis endpoint cache
// when Redis is configured.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	var store storage.Store
	switch cfg.Storage {
	case config.StorageMongoDB:
		mongo, err := storage.NewMongoStore(cfg.MongoDB.URI, cfg.MongoDB.Database, logger)
		if err != nil {
			return nil, errs.Wrap(err, "connect to mongodb")
		}
		store = mongo
	case config.StorageMemory, "":
		logger.Warn("Using in-memory storage; data is lost on restart")
		store = storage.NewMemoryStore()
	default:
		return nil, errs.Newf("unknown storage %q", cfg.Storage)
	}

	if cfg.Redis.Addr == "" {
		return store, nil
	}
	rdb, err := storage.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	logger.Info("Endpoint cache enabled", zap.String("redis_addr", cfg.Redis.Addr))
	return storage.NewCachedStore(store, rdb, cfg.Redis.EndpointTTL, logger), nil
}

// NewDispatcher builds the relay dispatcher and the pool bounding its
// deliveries.
func NewDispatcher(cfg *config.Config, store relay.Store, registry *templates.Registry, logger *zap.Logger) (*relay.Dispatcher, pond.Pool) {
	deliveries := relay.DeliveryPool(cfg.Relay.DeliveryWorkers)
	sender := relay.NewSender(cfg.Relay.RequestTimeout, cfg.Relay.UserAgent)
	return relay.NewDispatcher(store, sender, registry, deliveries, logger), deliveries
}

func newScheduler(ctx context.Context, cfg *config.Config, store storage.Store, registry *templates.Registry, logger *zap.Logger) (relay.Scheduler, pond.Pool, error) {
	switch cfg.Relay.Mode {
	case config.RelayModeQueue:
		publisher, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName, logger)
		if err != nil {
			return nil, nil, errs.Wrap(err, "create rabbitmq publisher")
		}
		publisher.StartMetricsUpdater(ctx)
		logger.Info("Relays run by queue workers", zap.String("queue", cfg.RabbitMQ.QueueName))
		return queue.NewScheduler(publisher, logger), nil, nil
	case config.RelayModeLocal, "":
		dispatcher, deliveries := NewDispatcher(cfg, store, registry, logger)
		logger.Info("Relays run in process", zap.Int("workers", cfg.Relay.Workers))
		return relay.NewLocalScheduler(dispatcher, cfg.Relay.Workers, logger), deliveries, nil
	default:
		return nil, nil, errs.Newf("unknown relay mode %q", cfg.Relay.Mode)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	// Start metrics server in a goroutine
	go func() {
		s.logger.Info("Metrics server starting on port " + s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("metrics server error: %v", err)
		}
	}()

	// Start main HTTP server
	s.logger.Info("Server starting on " + s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting postbacks, then drains scheduled relays before
// closing the store.
func (s *Server) Shutdown() error {
	s.logger.Info("Server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if mErr := s.metricsServer.Shutdown(ctx); mErr != nil {
		s.logger.Errorw("failed to stop metrics server", zap.Error(mErr))
	}

	s.scheduler.Close()
	if s.deliveries != nil {
		s.deliveries.StopAndWait()
	}
	s.cancel()

	if cErr := s.store.Close(ctx); cErr != nil {
		s.logger.Errorw("failed to close store", zap.Error(cErr))
	}
	return err
}
