package email

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"regexp"
	"strconv"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

func NewDialer(cfg SMTPConfig) *gomail.Dialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseTLS && cfg.Port == 465
	return d
}

type SMTPAdapter struct {
	dialer Dialer
	from   string
	domain string
	logger logger.Logger
}

func NewSMTPAdapter(dialer Dialer, cfg SMTPConfig, log logger.Logger) *SMTPAdapter {
	return &SMTPAdapter{
		dialer: dialer,
		from:   cfg.From,
		domain: cfg.Host,
		logger: log.WithFields(map[string]interface{}{"adapter": "smtp"}),
	}
}

// Send dials per message. gomail has no context support, so a deadline is
// enforced by the channel.WithTimeout wrapper around this adapter.
func (a *SMTPAdapter) Send(ctx context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	if err := checkmail.ValidateFormat(target.Handle); err != nil {
		return models.Failed(models.ErrorKindRecipientInvalid, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return models.Failed(models.ErrorKindTransport, err.Error())
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), a.domain)

	m := gomail.NewMessage()
	m.SetHeader("From", a.from)
	m.SetAddressHeader("To", target.Handle, target.Name())
	m.SetHeader("Subject", deref(subject))
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", body)

	if err := a.dialer.DialAndSend(m); err != nil {
		outcome := classifySMTPError(err)
		a.logger.Warn("smtp send failed", map[string]interface{}{
			"targetId":  target.ID,
			"errorKind": string(outcome.ErrorKind),
			"error":     err,
		})
		return outcome
	}

	return models.Sent(messageID)
}

// gomail flattens send errors with %v, so reply codes are recovered from
// the text when the *textproto.Error is gone.
var replyCode = regexp.MustCompile(`(?:^|:\s)([2-5]\d{2})[\s-]`)

func smtpCode(err error) (int, bool) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, true
	}
	m := replyCode.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, convErr := strconv.Atoi(m[1])
	return code, convErr == nil
}

func classifySMTPError(err error) models.SendOutcome {
	if code, ok := smtpCode(err); ok {
		switch code {
		case 550, 551, 553:
			return models.Failed(models.ErrorKindRecipientInvalid, err.Error())
		case 554:
			return models.Failed(models.ErrorKindRecipientBlocked, err.Error())
		case 421, 450, 451, 452:
			return models.Failed(models.ErrorKindRateLimited, err.Error())
		}
		return models.Failed(models.ErrorKindUnknown, err.Error())
	}
	return channel.FailureFromError(err)
}
