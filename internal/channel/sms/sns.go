// Package sms delivers campaign messages as SMS through Amazon SNS.
package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/common/validation"
	"outreach-engine/internal/models"
)

// SNSService is the slice of the SNS client the adapter needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	CheckIfPhoneNumberIsOptedOut(ctx context.Context, params *sns.CheckIfPhoneNumberIsOptedOutInput, optFns ...func(*sns.Options)) (*sns.CheckIfPhoneNumberIsOptedOutOutput, error)
}

type Config struct {
	SenderID string
	SMSType  string // Promotional or Transactional
}

type Adapter struct {
	client SNSService
	config Config
	logger logger.Logger
}

func NewAdapter(client SNSService, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{
		client: client,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"adapter": "sns"}),
	}
}

// Send checks the opt-out list before publishing. The subject is ignored.
func (a *Adapter) Send(ctx context.Context, target models.Target, _ *string, body string) models.SendOutcome {
	phone := target.Handle
	if !validation.ValidatePhone(phone) {
		return models.Failed(models.ErrorKindRecipientInvalid, "handle is not an E.164 phone number")
	}

	optOut, err := a.client.CheckIfPhoneNumberIsOptedOut(ctx, &sns.CheckIfPhoneNumberIsOptedOutInput{
		PhoneNumber: aws.String(phone),
	})
	if err != nil {
		return a.fail(target, err)
	}
	if optOut.IsOptedOut {
		return models.Failed(models.ErrorKindRecipientBlocked, "phone number has opted out")
	}

	out, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(body),
		MessageAttributes: a.attributes(),
	})
	if err != nil {
		return a.fail(target, err)
	}

	return models.Sent(aws.ToString(out.MessageId))
}

func (a *Adapter) attributes() map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{}
	if a.config.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(a.config.SenderID),
		}
	}
	if a.config.SMSType != "" {
		attrs["AWS.SNS.SMS.SMSType"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(a.config.SMSType),
		}
	}
	return attrs
}

func (a *Adapter) fail(target models.Target, err error) models.SendOutcome {
	outcome := classifySNSError(err)
	a.logger.Warn("sns send failed", map[string]interface{}{
		"targetId":  target.ID,
		"errorKind": string(outcome.ErrorKind),
		"error":     err,
	})
	return outcome
}

func classifySNSError(err error) models.SendOutcome {
	if kind, ok := channel.ClassifyTransport(err); ok {
		return models.Failed(kind, err.Error())
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return models.Failed(models.ErrorKindUnknown, err.Error())
	}

	code := apiErr.ErrorCode()
	msg := apiErr.ErrorMessage()
	switch {
	case code == "InvalidParameter" || code == "InvalidParameterValue":
		return models.Failed(models.ErrorKindRecipientInvalid, msg)
	case strings.HasPrefix(code, "Throttl"):
		return models.Failed(models.ErrorKindRateLimited, msg)
	case code == "OptedOut":
		return models.Failed(models.ErrorKindRecipientBlocked, msg)
	case code == "InternalError" || code == "ServiceUnavailable":
		return models.Failed(models.ErrorKindTransport, msg)
	default:
		return models.Failed(models.ErrorKindUnknown, code+": "+msg)
	}
}
