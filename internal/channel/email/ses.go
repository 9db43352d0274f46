// Package email delivers campaign messages over Amazon SES or plain SMTP.
package email

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"github.com/badoux/checkmail"

	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// SESService is the slice of the SES client the adapter needs.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESConfig struct {
	FromEmail        string
	ConfigurationSet string
}

type SESAdapter struct {
	client SESService
	config SESConfig
	logger logger.Logger
}

func NewSESAdapter(client SESService, cfg SESConfig, log logger.Logger) *SESAdapter {
	return &SESAdapter{
		client: client,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"adapter": "ses"}),
	}
}

func (a *SESAdapter) Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	if err := checkmail.ValidateFormat(target.Handle); err != nil {
		return models.Failed(models.ErrorKindRecipientInvalid, err.Error())
	}

	input := &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{target.Handle},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(deref(subject))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(a.config.FromEmail),
	}
	if a.config.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(a.config.ConfigurationSet)
	}

	out, err := a.client.SendEmail(ctx, input)
	if err != nil {
		outcome := classifySESError(err)
		a.logger.Warn("ses send failed", map[string]interface{}{
			"targetId":  target.ID,
			"errorKind": string(outcome.ErrorKind),
			"error":     err,
		})
		return outcome
	}

	return models.Sent(aws.ToString(out.MessageId))
}

func classifySESError(err error) models.SendOutcome {
	if kind, ok := channel.ClassifyTransport(err); ok {
		return models.Failed(kind, err.Error())
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return models.Failed(models.ErrorKindUnknown, err.Error())
	}

	msg := apiErr.ErrorMessage()
	switch apiErr.ErrorCode() {
	case "MessageRejected":
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "blacklist") || strings.Contains(lower, "suppression") {
			return models.Failed(models.ErrorKindRecipientBlocked, msg)
		}
		return models.Failed(models.ErrorKindRecipientInvalid, msg)
	case "Throttling", "ThrottlingException", "LimitExceeded", "MaxSendingRateExceeded":
		return models.Failed(models.ErrorKindRateLimited, msg)
	case "ServiceUnavailable", "InternalFailure", "RequestTimeout":
		return models.Failed(models.ErrorKindTransport, msg)
	default:
		return models.Failed(models.ErrorKindUnknown, apiErr.ErrorCode()+": "+msg)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
