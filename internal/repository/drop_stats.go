package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DropStatsRepository per-reason drop counters in a Redis hash, shared by all
// pipeline workers and processes writing to the same key
type DropStatsRepository struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewDropStatsRepository creates the repository
func NewDropStatsRepository(client *redis.Client, key string, logger *zap.Logger) *DropStatsRepository {
	return &DropStatsRepository{
		client: client,
		key:    key,
		logger: logger,
	}
}

// RecordDrop increments the counter for reason
func (r *DropStatsRepository) RecordDrop(ctx context.Context, reason string) error {
	if err := r.client.HIncrBy(ctx, r.key, reason, 1).Err(); err != nil {
		return fmt.Errorf("failed to increment drop counter %s: %w", reason, err)
	}
	return nil
}

// Counts returns every recorded reason and its count
func (r *DropStatsRepository) Counts(ctx context.Context) (map[string]int64, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read drop counters: %w", err)
	}

	counts := make(map[string]int64, len(values))
	for reason, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.logger.Warn("Ignoring malformed drop counter", zap.String("reason", reason), zap.String("value", raw))
			continue
		}
		counts[reason] = n
	}
	return counts, nil
}
