// Package linkedin sends direct messages from a logged-in LinkedIn session.
package linkedin

import (
	"context"
	"errors"
	"strings"

	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

var (
	ErrProfileNotFound      = errors.New("linkedin: profile not found")
	ErrMessagingUnavailable = errors.New("linkedin: message button not available")
	ErrCheckpoint           = errors.New("linkedin: security checkpoint")
)

// Messenger delivers one message to a profile and returns a reference to
// the conversation it landed in.
type Messenger interface {
	SendMessage(ctx context.Context, profileURL, text string) (string, error)
}

type Adapter struct {
	messenger Messenger
	logger    logger.Logger
}

func NewAdapter(m Messenger, log logger.Logger) *Adapter {
	return &Adapter{
		messenger: m,
		logger:    log.WithFields(map[string]interface{}{"adapter": "linkedin"}),
	}
}

// ProfileURL accepts a full profile URL or a public identifier.
func ProfileURL(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "https://") || strings.HasPrefix(handle, "http://") {
		return handle
	}
	handle = strings.TrimPrefix(handle, "in/")
	return "https://www.linkedin.com/in/" + strings.Trim(handle, "/") + "/"
}

// Send ignores the subject: LinkedIn direct messages have none.
func (a *Adapter) Send(ctx context.Context, target models.Target, _ *string, body string) models.SendOutcome {
	if strings.TrimSpace(target.Handle) == "" {
		return models.Failed(models.ErrorKindRecipientInvalid, "empty handle")
	}

	ref, err := a.messenger.SendMessage(ctx, ProfileURL(target.Handle), body)
	if err != nil {
		outcome := classify(err)
		a.logger.Warn("linkedin send failed", map[string]interface{}{
			"targetId":  target.ID,
			"handle":    target.Handle,
			"errorKind": string(outcome.ErrorKind),
			"error":     outcome.ErrorMessage,
		})
		return outcome
	}
	return models.Sent(ref)
}

func classify(err error) models.SendOutcome {
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return models.Failed(models.ErrorKindRecipientInvalid, err.Error())
	case errors.Is(err, ErrMessagingUnavailable):
		return models.Failed(models.ErrorKindRecipientBlocked, err.Error())
	case errors.Is(err, ErrCheckpoint):
		return models.Failed(models.ErrorKindRateLimited, err.Error())
	}
	if kind, ok := channel.ClassifyTransport(err); ok {
		return models.Failed(kind, err.Error())
	}
	return models.Failed(models.ErrorKindTransport, err.Error())
}
