// Package trigger starts campaign runs from an AMQP queue.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/streadway/amqp"

	"outreach-engine/internal/campaign"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

type Dispatcher interface {
	Dispatch(ctx context.Context, req campaign.Request) (*models.CampaignResult, error)
}

// Channel is the subset of *amqp.Channel the consumer uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type Config struct {
	Queue    string
	Prefetch int
	Tag      string
}

type Consumer struct {
	ch         Channel
	cfg        Config
	dispatcher Dispatcher
	logger     logger.Logger
}

// Dial opens a connection and a channel on url. The caller closes both.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return conn, ch, nil
}

func NewConsumer(ch Channel, cfg Config, d Dispatcher, log logger.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Tag == "" {
		cfg.Tag = "outreach-engine"
	}
	return &Consumer{
		ch:         ch,
		cfg:        cfg,
		dispatcher: d,
		logger:     log.WithFields(map[string]interface{}{"component": "amqp-trigger", "queue": cfg.Queue}),
	}
}

// Run consumes until ctx is done or the broker closes the delivery channel.
// Runs are handled one at a time in delivery order.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	q, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	deliveries, err := c.ch.Consume(q.Name, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	c.logger.Info("consuming campaign requests", nil)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	req, err := campaign.ParseRequest(d.Body)
	if err != nil {
		c.logger.Warn("rejecting malformed campaign request", map[string]interface{}{
			"messageId": d.MessageId,
			"error":     err,
		})
		c.settle(d.Nack(false, false))
		return
	}
	if req.RunID == "" {
		req.RunID = d.MessageId
	}

	result, err := c.dispatcher.Dispatch(ctx, *req)
	if err != nil {
		stdErr := apperrors.AsStandard(err)
		requeue := apperrors.IsRetryableErrorCode(stdErr.Code) && !d.Redelivered
		c.logger.Error("campaign request failed", map[string]interface{}{
			"messageId": d.MessageId,
			"code":      stdErr.Code,
			"requeue":   requeue,
			"error":     err,
		})
		c.settle(d.Nack(false, requeue))
		return
	}

	c.logger.Info("campaign request handled", map[string]interface{}{
		"messageId": d.MessageId,
		"runId":     result.RunID,
		"sent":      result.Sent,
		"failed":    result.Failed,
	})
	c.settle(d.Ack(false))
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Error("failed to settle delivery", map[string]interface{}{"error": err})
	}
}
