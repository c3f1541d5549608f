// Package pipeline wires a queue source through the validator into an
// append-only sink.
package pipeline

import (
	"context"
	"errors"

	"patientvitals/internal/models"
	"patientvitals/internal/validator"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Message one queue delivery
type Message struct {
	ID      string
	Payload []byte
	// Ack tells the source the message is settled. Nil when the transport
	// acknowledges on its own.
	Ack func(ctx context.Context) error
}

// Source produces queue messages until ctx is cancelled. Both channels are
// closed when the source stops.
type Source interface {
	Start(ctx context.Context) (<-chan Message, <-chan error)
}

// Sink appends accepted records
type Sink interface {
	Append(ctx context.Context, rec models.VitalsRecord) error
}

// Pipeline Source -> Validator -> Sink
type Pipeline struct {
	Source    Source
	Sink      Sink
	Validator *validator.Validator
	// Workers number of messages validated concurrently (default 1)
	Workers int
	// Drops, when set, receives the reason for every drop. Nil keeps drops silent.
	Drops  DropRecorder
	Stats  *Stats
	Logger *zap.Logger
}

// Run processes messages until ctx is cancelled or the source closes.
// Each message is handled on its own: no batching, ordering or shared state.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Source == nil {
		return errors.New("pipeline source is required")
	}
	if p.Sink == nil {
		return errors.New("pipeline sink is required")
	}

	w := &worker{
		sink:      p.Sink,
		validator: p.Validator,
		drops:     p.Drops,
		stats:     p.Stats,
		logger:    p.Logger,
	}
	if w.validator == nil {
		w.validator = validator.New()
	}
	if w.stats == nil {
		w.stats = NewStats()
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	msgCh, errCh := p.Source.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-errCh:
				if !ok {
					return nil
				}
				if err != nil {
					w.logger.Error("Source error", zap.Error(err))
				}
			}
		}
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg, ok := <-msgCh:
					if !ok {
						return nil
					}
					w.process(gctx, msg)
				}
			}
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

type worker struct {
	sink      Sink
	validator *validator.Validator
	drops     DropRecorder
	stats     *Stats
	logger    *zap.Logger
}

func (w *worker) process(ctx context.Context, msg Message) {
	w.stats.received.Add(1)

	rec, err := w.validate(msg.Payload)
	if err != nil {
		w.stats.dropped.Add(1)
		if w.drops != nil {
			reason := validator.ReasonLabel(err)
			if recErr := w.drops.RecordDrop(ctx, reason); recErr != nil {
				w.logger.Warn("Failed to record drop", zap.String("reason", reason), zap.Error(recErr))
			}
			w.logger.Debug("Dropped message",
				zap.String("message_id", msg.ID),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
		w.ack(ctx, msg)
		return
	}

	if err := w.sink.Append(ctx, rec); err != nil {
		// left unacknowledged so the source delivers it again
		w.stats.appendFailures.Add(1)
		w.logger.Error("Failed to append record",
			zap.String("message_id", msg.ID),
			zap.Int64("patient_id", rec.PatientID),
			zap.Error(err),
		)
		return
	}

	w.stats.accepted.Add(1)
	w.logger.Debug("Appended record",
		zap.String("message_id", msg.ID),
		zap.Int64("patient_id", rec.PatientID),
		zap.String("event_ts", rec.EventTS),
	)
	w.ack(ctx, msg)
}

var errDropped = errors.New("dropped")

// validate only classifies drops when someone is recording them
func (w *worker) validate(payload []byte) (models.VitalsRecord, error) {
	if w.drops != nil {
		return w.validator.Check(payload)
	}
	rec, ok := w.validator.Validate(payload)
	if !ok {
		return rec, errDropped
	}
	return rec, nil
}

func (w *worker) ack(ctx context.Context, msg Message) {
	if msg.Ack == nil {
		return
	}
	if err := msg.Ack(ctx); err != nil {
		w.logger.Warn("Failed to acknowledge message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}
