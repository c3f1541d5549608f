package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const maxErrorPause = 5 * time.Second

// Runner publishes one generated event per interval until cancelled
type Runner struct {
	generator *Generator
	publisher Publisher
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRunner creates a runner
func NewRunner(generator *Generator, publisher Publisher, interval, timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		generator: generator,
		publisher: publisher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Run keeps publishing until ctx is cancelled. A failed publish is logged
// and the loop carries on after a shorter pause.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		pause := r.interval
		if err := r.publishOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("Publish failed", zap.Error(err))
			pause = min(r.interval, maxErrorPause)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
}

func (r *Runner) publishOne(ctx context.Context) error {
	event, injected := r.generator.Next()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.publisher.Publish(pubCtx, payload)
	if err != nil {
		return err
	}

	r.logger.Info("Published vitals",
		zap.String("message_id", id),
		zap.String("injected_error", injected),
		zap.ByteString("payload", payload),
	)
	return nil
}
