package channel

import (
	"context"
	"fmt"
	"time"

	"outreach-engine/internal/models"
)

type timeoutAdapter struct {
	next    Adapter
	timeout time.Duration
}

// WithTimeout bounds every call to next. When the deadline passes the call
// reports a transport failure even if next ignores its context; the late
// result is discarded.
func WithTimeout(next Adapter, timeout time.Duration) Adapter {
	if timeout <= 0 {
		return next
	}
	return &timeoutAdapter{next: next, timeout: timeout}
}

func (a *timeoutAdapter) Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result := make(chan models.SendOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- models.Failed(models.ErrorKindUnknown, fmt.Sprintf("adapter panic: %v", r))
			}
		}()
		result <- a.next.Send(ctx, target, subject, body)
	}()

	select {
	case out := <-result:
		return out
	case <-ctx.Done():
		return models.Failed(models.ErrorKindTransport, fmt.Sprintf("send timed out after %s: %v", a.timeout, ctx.Err()))
	}
}
