// Package audit records one immutable entry per attempted campaign action.
package audit

import (
	"context"
	"errors"
	"time"

	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/common/metrics"
	"outreach-engine/internal/models"
)

type Sink interface {
	LogAction(ctx context.Context, entry models.AuditEntry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry models.AuditEntry) error

func (f SinkFunc) LogAction(ctx context.Context, entry models.AuditEntry) error {
	return f(ctx, entry)
}

// Multi writes every entry to all sinks and joins their errors.
type Multi []Sink

func (m Multi) LogAction(ctx context.Context, entry models.AuditEntry) error {
	var errs []error
	for _, s := range m {
		if err := s.LogAction(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort retries a sink a fixed number of times and then drops the
// entry. Its LogAction never returns an error.
type BestEffort struct {
	sink     Sink
	name     string
	attempts int
	backoff  time.Duration
	logger   logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewBestEffort(sink Sink, name string, attempts int, backoff time.Duration, log logger.Logger) *BestEffort {
	if attempts < 1 {
		attempts = 1
	}
	return &BestEffort{
		sink:     sink,
		name:     name,
		attempts: attempts,
		backoff:  backoff,
		logger:   log.WithFields(map[string]interface{}{"component": "audit", "sink": name}),
		sleep:    sleepCtx,
	}
}

func (b *BestEffort) LogAction(ctx context.Context, entry models.AuditEntry) error {
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		lastErr = b.sink.LogAction(ctx, entry)
		if lastErr == nil {
			return nil
		}
		if attempt < b.attempts {
			if err := b.sleep(ctx, b.backoff); err != nil {
				break
			}
		}
	}

	metrics.AuditFailures.WithLabelValues(b.name).Inc()
	b.logger.Error("audit entry dropped", map[string]interface{}{
		"runId":    entry.RunID,
		"action":   string(entry.Action),
		"channel":  string(entry.Channel),
		"attempts": b.attempts,
		"error":    lastErr.Error(),
	})
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
