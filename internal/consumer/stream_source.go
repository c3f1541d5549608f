package consumer

import (
	"context"
	"fmt"
	"time"

	rediscommon "patientvitals/common/redis"
	"patientvitals/internal/pipeline"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamSourceConfig Redis Streams subscription settings
type StreamSourceConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
	// PendingInterval how often unacknowledged entries (failed appends,
	// entries held by a consumer that went away) are claimed and delivered
	// again. Zero disables it; this consumer's own pending entries are still
	// drained once at start.
	PendingInterval time.Duration
	// ClaimMinIdle how long an entry must sit unacknowledged before it is
	// claimed, so entries still being appended are left alone
	ClaimMinIdle time.Duration
}

// StreamSource reads vitals payloads from a Redis Streams consumer group.
// Entries are acknowledged only through pipeline.Message.Ack, so anything not
// acked is claimed and delivered again once it has been idle for ClaimMinIdle.
type StreamSource struct {
	client *redis.Client
	config StreamSourceConfig
	logger *zap.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewStreamSource creates a stream source
func NewStreamSource(client *redis.Client, cfg StreamSourceConfig, logger *zap.Logger) *StreamSource {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = time.Minute
	}
	return &StreamSource{
		client:         client,
		config:         cfg,
		logger:         logger,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
}

// Start implements pipeline.Source
func (s *StreamSource) Start(ctx context.Context) (<-chan pipeline.Message, <-chan error) {
	msgCh := make(chan pipeline.Message)
	errCh := make(chan error)

	go func() {
		defer close(msgCh)
		defer close(errCh)
		s.run(ctx, msgCh, errCh)
	}()

	return msgCh, errCh
}

func (s *StreamSource) run(ctx context.Context, msgCh chan<- pipeline.Message, errCh chan<- error) {
	backoff := s.initialBackoff

	for {
		err := rediscommon.CreateConsumerGroup(ctx, s.client, s.config.Stream, s.config.Group)
		if err == nil {
			break
		}
		if !s.fail(ctx, errCh, fmt.Errorf("failed to create consumer group %s on %s: %w", s.config.Group, s.config.Stream, err), &backoff) {
			return
		}
	}

	s.logger.Info("Stream source started",
		zap.String("stream", s.config.Stream),
		zap.String("consumer_group", s.config.Group),
		zap.String("consumer_name", s.config.Consumer),
	)

	// "0" walks this consumer's pending entries, ">" asks for new ones
	cursor := "0"
	var lastClaim time.Time
	backoff = s.initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		if cursor == ">" && s.config.PendingInterval > 0 && time.Since(lastClaim) >= s.config.PendingInterval {
			ok, err := s.reclaim(ctx, msgCh)
			if !ok {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !s.fail(ctx, errCh, fmt.Errorf("failed to claim pending entries on %s: %w", s.config.Stream, err), &backoff) {
					return
				}
				continue
			}
			lastClaim = time.Now()
		}

		draining := cursor != ">"
		block := s.config.Block
		if draining {
			block = -1
		}
		messages, err := rediscommon.ReadFromStream(ctx, s.client, rediscommon.ReadArgs{
			Stream:   s.config.Stream,
			Group:    s.config.Group,
			Consumer: s.config.Consumer,
			Start:    cursor,
			Count:    s.config.BatchSize,
			Block:    block,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.fail(ctx, errCh, fmt.Errorf("failed to read from stream %s: %w", s.config.Stream, err), &backoff) {
				return
			}
			continue
		}
		backoff = s.initialBackoff

		if draining && len(messages) == 0 {
			cursor = ">"
			continue
		}

		for _, m := range messages {
			if !s.emit(ctx, msgCh, m) {
				return
			}
			if draining {
				cursor = m.ID
			}
		}
	}
}

// reclaim takes over every entry idle for ClaimMinIdle, from any consumer in
// the group, and emits it. It returns false once ctx is done.
func (s *StreamSource) reclaim(ctx context.Context, msgCh chan<- pipeline.Message) (bool, error) {
	for {
		messages, err := rediscommon.ClaimIdle(ctx, s.client, rediscommon.ClaimArgs{
			Stream:   s.config.Stream,
			Group:    s.config.Group,
			Consumer: s.config.Consumer,
			MinIdle:  s.config.ClaimMinIdle,
			Count:    s.config.BatchSize,
		})
		if err != nil {
			return true, err
		}

		if len(messages) > 0 {
			s.logger.Info("Claimed idle pending entries",
				zap.String("stream", s.config.Stream),
				zap.Int("count", len(messages)),
			)
		}
		for _, m := range messages {
			if !s.emit(ctx, msgCh, m) {
				return false, nil
			}
		}

		// claimed entries are no longer idle, so a full batch means there may be more
		if int64(len(messages)) < s.config.BatchSize {
			return true, nil
		}
	}
}

func (s *StreamSource) emit(ctx context.Context, msgCh chan<- pipeline.Message, m rediscommon.StreamMessage) bool {
	id := m.ID
	msg := pipeline.Message{
		ID:      id,
		Payload: m.Payload(),
		Ack: func(ctx context.Context) error {
			return rediscommon.AckStream(ctx, s.client, s.config.Stream, s.config.Group, id)
		},
	}

	select {
	case <-ctx.Done():
		return false
	case msgCh <- msg:
		return true
	}
}

// fail reports err and waits out an exponential backoff. It returns false
// once ctx is done.
func (s *StreamSource) fail(ctx context.Context, errCh chan<- error, err error, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case errCh <- err:
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}

	*backoff *= 2
	if *backoff > s.maxBackoff {
		*backoff = s.maxBackoff
	}
	return true
}
