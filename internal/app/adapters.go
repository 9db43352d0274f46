package app

import (
	"context"
	"fmt"
	"io"

	"outreach-engine/internal/channel"
	"outreach-engine/internal/channel/email"
	"outreach-engine/internal/channel/linkedin"
	"outreach-engine/internal/channel/reddit"
	"outreach-engine/internal/channel/sms"
	awsclients "outreach-engine/internal/common/aws"
	"outreach-engine/internal/common/config"
	commonhttp "outreach-engine/internal/common/http"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// adapterFactory builds lane adapters by name and remembers what must be
// closed on shutdown.
type adapterFactory struct {
	cfg     *config.Config
	logger  logger.Logger
	awsCfg  *aws.Config
	closers []io.Closer
}

func (f *adapterFactory) build(ctx context.Context, ch models.Channel, lane config.ChannelConfig) (channel.Adapter, error) {
	integ := f.cfg.Integrations
	timeout := config.GetDuration(lane.Timeout)

	var adapter channel.Adapter
	switch lane.Adapter {
	case config.AdapterDryRun:
		adapter = channel.NewDryRun(f.logger)

	case config.AdapterSES:
		awsCfg, err := f.aws(ctx)
		if err != nil {
			return nil, err
		}
		adapter = email.NewSESAdapter(awsclients.NewSESClient(awsCfg), email.SESConfig{
			FromEmail:        integ.AWS.SES.FromEmail,
			ConfigurationSet: integ.AWS.SES.ConfigurationSet,
		}, f.logger)

	case config.AdapterSMTP:
		smtpCfg := email.SMTPConfig{
			Host:     integ.SMTP.Host,
			Port:     integ.SMTP.Port,
			Username: integ.SMTP.Username,
			Password: integ.SMTP.Password,
			UseTLS:   integ.SMTP.UseTLS,
			From:     integ.SMTP.DefaultFrom,
		}
		adapter = email.NewSMTPAdapter(email.NewDialer(smtpCfg), smtpCfg, f.logger)

	case config.AdapterSNS:
		awsCfg, err := f.aws(ctx)
		if err != nil {
			return nil, err
		}
		adapter = sms.NewAdapter(awsclients.NewSNSClient(awsCfg), sms.Config{
			SenderID: integ.AWS.SNS.DefaultSMSSenderID,
			SMSType:  integ.AWS.SNS.SMSType,
		}, f.logger)

	case config.AdapterReddit:
		client := commonhttp.NewClient(timeout, commonhttp.WithUserAgent(integ.Reddit.UserAgent))
		adapter = reddit.NewAdapter(client, reddit.Config{
			BaseURL:      integ.Reddit.BaseURL,
			AuthURL:      integ.Reddit.AuthURL,
			ClientID:     integ.Reddit.ClientID,
			ClientSecret: integ.Reddit.ClientSecret,
			Username:     integ.Reddit.Username,
			Password:     integ.Reddit.Password,
		}, f.logger)

	case config.AdapterLinkedIn:
		messenger, err := linkedin.NewRodMessenger(linkedin.RodConfig{
			ControlURL:    integ.LinkedIn.ControlURL,
			Headless:      integ.LinkedIn.Headless,
			SessionCookie: integ.LinkedIn.SessionCookie,
			PageTimeout:   config.GetDuration(integ.LinkedIn.PageTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("linkedin browser: %w", err)
		}
		f.closers = append(f.closers, messenger)
		adapter = linkedin.NewAdapter(messenger, f.logger)

	default:
		return nil, fmt.Errorf("channel %s: unknown adapter %q", ch, lane.Adapter)
	}

	return channel.WithTimeout(adapter, timeout), nil
}

func (f *adapterFactory) aws(ctx context.Context) (aws.Config, error) {
	if f.awsCfg != nil {
		return *f.awsCfg, nil
	}
	cfg, err := awsclients.LoadConfig(ctx, f.cfg.Integrations.AWS.Region, f.cfg.Integrations.AWS.Endpoint)
	if err != nil {
		return aws.Config{}, err
	}
	f.awsCfg = &cfg
	return cfg, nil
}
