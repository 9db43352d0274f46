package channel

import (
	"context"
	"errors"
	"net"

	"outreach-engine/internal/models"
)

// ClassifyTransport maps errors every adapter can see (deadlines, network
// failures) to an ErrorKind. ok is false when the error is not one of them
// and the adapter must classify it from platform signals.
func ClassifyTransport(err error) (kind models.ErrorKind, ok bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrorKindTransport, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.ErrorKindTransport, true
	}
	return "", false
}

// FailureFromError builds an outcome for err, falling back to unknown when
// the error is not a transport failure.
func FailureFromError(err error) models.SendOutcome {
	if kind, ok := ClassifyTransport(err); ok {
		return models.Failed(kind, err.Error())
	}
	return models.Failed(models.ErrorKindUnknown, err.Error())
}
