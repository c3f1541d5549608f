package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"patientvitals/common/database"
	mqttcommon "patientvitals/common/mqtt"
	rediscommon "patientvitals/common/redis"
	"patientvitals/internal/config"
	"patientvitals/internal/consumer"
	"patientvitals/internal/handlers"
	"patientvitals/internal/pipeline"
	"patientvitals/internal/repository"
	"patientvitals/internal/validator"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PipelineService streaming job: queue source -> validator -> warehouse
type PipelineService struct {
	config *config.PipelineConfig
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	stats    *pipeline.Stats
	pipeline *pipeline.Pipeline
	app      *fiber.App
}

// NewPipelineService connects to the warehouse and the queue and assembles
// the pipeline
func NewPipelineService(ctx context.Context, cfg *config.PipelineConfig, logger *zap.Logger) (*PipelineService, error) {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Pipeline.SourceType == config.SourceRedis || cfg.DropStats.Enabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	var mqttClient *mqttcommon.Client
	if cfg.Pipeline.SourceType == config.SourceMQTT {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			rediscommon.Close(redisClient)
			database.Close(db)
			return nil, err
		}
	}

	s, err := newPipelineService(cfg, db, redisClient, mqttClient, logger)
	if err != nil {
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, err
	}
	return s, nil
}

// newPipelineService wires already connected clients. mqttClient is only
// used by the mqtt source; redisClient may be nil when neither the source
// nor drop stats need it.
func newPipelineService(cfg *config.PipelineConfig, db *sql.DB, redisClient *redis.Client, mqttClient *mqttcommon.Client, logger *zap.Logger) (*PipelineService, error) {
	sink, err := repository.NewVitalsRepository(db, cfg.Pipeline.Table, logger)
	if err != nil {
		return nil, err
	}

	var source pipeline.Source
	switch cfg.Pipeline.SourceType {
	case config.SourceRedis:
		source = consumer.NewStreamSource(redisClient, consumer.StreamSourceConfig{
			Stream:          cfg.Pipeline.Subscription,
			Group:           cfg.Pipeline.ConsumerGroup,
			Consumer:        cfg.Pipeline.ConsumerName,
			BatchSize:       cfg.Pipeline.BatchSize,
			Block:           cfg.Pipeline.Block,
			PendingInterval: cfg.Pipeline.PendingInterval,
			ClaimMinIdle:    cfg.Pipeline.ClaimMinIdle,
		}, logger)
	case config.SourceMQTT:
		if mqttClient == nil {
			return nil, errors.New("mqtt source requires an MQTT client")
		}
		source = consumer.NewMQTTSource(mqttClient, cfg.Pipeline.Subscription, cfg.MQTT.QoS, logger)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Pipeline.SourceType)
	}

	stats := pipeline.NewStats()

	var (
		drops    pipeline.DropRecorder
		dropRepo *repository.DropStatsRepository
	)
	if cfg.DropStats.Enabled {
		dropRepo = repository.NewDropStatsRepository(redisClient, cfg.DropStats.Key, logger)
		drops = pipeline.MultiRecorder{stats, dropRepo}
	}

	s := &PipelineService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		stats:       stats,
		pipeline: &pipeline.Pipeline{
			Source:    source,
			Sink:      sink,
			Validator: validator.New(),
			Workers:   cfg.Pipeline.Workers,
			Drops:     drops,
			Stats:     stats,
			Logger:    logger,
		},
	}

	if cfg.HTTP.Addr != "" {
		checks := []handlers.Check{{Name: "database", Ping: sink.Ping}}
		if redisClient != nil {
			checks = append(checks, handlers.Check{Name: "redis", Ping: func(ctx context.Context) error {
				return rediscommon.Ping(ctx, redisClient)
			}})
		}

		if mqttClient != nil {
			checks = append(checks, connectionCheck("mqtt", mqttClient))
		}

		var counter handlers.DropCounter
		if dropRepo != nil {
			counter = dropRepo
		}
		s.app = handlers.NewApp(
			handlers.NewHealthHandler(checks...),
			handlers.NewStatsHandler(stats, counter, logger),
		)
	}

	return s, nil
}

// connectionChecker a client that tracks its own connection state
type connectionChecker interface {
	IsConnected() bool
}

// connectionCheck reports client's connection state as a health check
func connectionCheck(name string, client connectionChecker) handlers.Check {
	return handlers.Check{
		Name: name,
		Ping: func(context.Context) error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}
}

// Stats returns the live pipeline counters
func (s *PipelineService) Stats() *pipeline.Stats {
	return s.stats
}

// Start runs the pipeline until ctx is cancelled. Cancellation is a normal
// stop and returns nil.
func (s *PipelineService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals pipeline",
		zap.String("source_type", s.config.Pipeline.SourceType),
		zap.String("subscription", s.config.Pipeline.Subscription),
		zap.String("table", s.config.Pipeline.Table),
		zap.Int("workers", s.config.Pipeline.Workers),
		zap.Bool("drop_stats", s.config.DropStats.Enabled),
	)

	if s.app != nil {
		go func() {
			s.logger.Info("Status server starting", zap.String("address", s.config.HTTP.Addr))
			if err := s.app.Listen(s.config.HTTP.Addr); err != nil {
				s.logger.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	err := s.pipeline.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop shuts down the status server and closes every client
func (s *PipelineService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vitals pipeline")

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("Error shutting down status server", zap.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing Redis client", zap.Error(err))
	}

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database connection", zap.Error(err))
	}

	snap := s.stats.Snapshot()
	s.logger.Info("Vitals pipeline stopped",
		zap.Int64("received", snap.Received),
		zap.Int64("accepted", snap.Accepted),
		zap.Int64("dropped", snap.Dropped),
		zap.Int64("append_failures", snap.AppendFailures),
	)
	return nil
}
