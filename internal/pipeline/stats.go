package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"patientvitals/internal/validator"
)

// Stats in-process counters for a running pipeline
type Stats struct {
	received       atomic.Int64
	accepted       atomic.Int64
	dropped        atomic.Int64
	appendFailures atomic.Int64
	// fixed at construction, only the counters change
	reasons map[string]*atomic.Int64
}

// StatsSnapshot point-in-time copy of Stats
type StatsSnapshot struct {
	Received       int64            `json:"received"`
	Accepted       int64            `json:"accepted"`
	Dropped        int64            `json:"dropped"`
	AppendFailures int64            `json:"append_failures"`
	DropReasons    map[string]int64 `json:"drop_reasons,omitempty"`
}

// NewStats creates zeroed counters
func NewStats() *Stats {
	reasons := make(map[string]*atomic.Int64)
	for _, label := range append(validator.Labels(), "unknown") {
		reasons[label] = new(atomic.Int64)
	}
	return &Stats{reasons: reasons}
}

// RecordDrop counts a drop by reason label
func (s *Stats) RecordDrop(_ context.Context, reason string) error {
	counter, ok := s.reasons[reason]
	if !ok {
		counter = s.reasons["unknown"]
	}
	counter.Add(1)
	return nil
}

// Snapshot copies the counters; per-reason counts are included only when
// something was recorded.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Received:       s.received.Load(),
		Accepted:       s.accepted.Load(),
		Dropped:        s.dropped.Load(),
		AppendFailures: s.appendFailures.Load(),
	}
	for reason, counter := range s.reasons {
		if n := counter.Load(); n > 0 {
			if snap.DropReasons == nil {
				snap.DropReasons = make(map[string]int64)
			}
			snap.DropReasons[reason] = n
		}
	}
	return snap
}

// DropRecorder receives the reason label of every dropped message
type DropRecorder interface {
	RecordDrop(ctx context.Context, reason string) error
}

// MultiRecorder fans a drop out to several recorders
type MultiRecorder []DropRecorder

// RecordDrop calls every recorder and joins their errors
func (m MultiRecorder) RecordDrop(ctx context.Context, reason string) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordDrop(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
