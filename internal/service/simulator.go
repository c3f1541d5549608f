package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	mqttcommon "patientvitals/common/mqtt"
	rediscommon "patientvitals/common/redis"
	"patientvitals/internal/config"
	"patientvitals/internal/simulator"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SimulatorService publishes synthetic vitals to the pipeline's queue
type SimulatorService struct {
	config *config.SimulatorConfig
	logger *zap.Logger

	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	runner      *simulator.Runner
}

// NewSimulatorService connects to the configured transport
func NewSimulatorService(ctx context.Context, cfg *config.SimulatorConfig, logger *zap.Logger) (*SimulatorService, error) {
	s := &SimulatorService{config: cfg, logger: logger}

	var publisher simulator.Publisher
	switch cfg.Simulator.Transport {
	case config.SourceRedis:
		s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, s.redisClient); err != nil {
			rediscommon.Close(s.redisClient)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		publisher = simulator.NewStreamPublisher(s.redisClient, cfg.Simulator.Topic)
	case config.SourceMQTT:
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
		s.mqttClient = client
		publisher = simulator.NewMQTTPublisher(client, cfg.Simulator.Topic, cfg.MQTT.QoS)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Simulator.Transport)
	}

	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	generator := simulator.NewGenerator(cfg, rand.New(rand.NewSource(seed)))

	s.runner = simulator.NewRunner(generator, publisher, cfg.Simulator.Interval, cfg.Simulator.PublishTimeout, logger)
	return s, nil
}

// Start publishes until ctx is cancelled
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting vitals simulator",
		zap.String("transport", s.config.Simulator.Transport),
		zap.String("topic", s.config.Simulator.Topic),
		zap.Int("patient_count", s.config.Simulator.PatientCount),
		zap.Duration("interval", s.config.Simulator.Interval),
		zap.Float64("error_rate", s.config.Simulator.ErrorRate),
		zap.String("error_mode", s.config.Simulator.ErrorMode),
	)
	return s.runner.Run(ctx)
}

// Stop closes the transport client
func (s *SimulatorService) Stop(_ context.Context) error {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing Redis client", zap.Error(err))
	}
	s.logger.Info("Vitals simulator stopped")
	return nil
}
