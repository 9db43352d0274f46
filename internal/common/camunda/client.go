// Package camunda connects the outreach worker to the Zeebe broker that
// schedules run-campaign jobs.
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/errors"
)

// Client holds the broker connection used to poll run-campaign jobs and to
// report their results.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	// ConnectionTimeout bounds the topology request made on connect and by
	// the readiness probe.
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
	RetryConfig       *RetryConfig
}

// RetryConfig paces repeated job commands. Delays double per attempt up to
// MaxDelay.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (r *RetryConfig) delay(attempt int) time.Duration {
	d := r.BaseDelay << attempt
	if d <= 0 || d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// DefaultRetryConfig is used for complete and fail commands sent after a
// campaign run.
var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 4,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   4 * time.Second,
}

// ConfigFrom maps the camunda config section. The broker is reached over a
// plaintext gateway inside the cluster.
func ConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	return &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         config.GetDuration(cfg.RequestTimeout),
		RetryConfig:            DefaultRetryConfig,
	}
}

// NewClientWithConfig dials the gateway and fails fast when the broker does
// not answer a topology request.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}

	zb, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client for %s: %w", cfg.GatewayAddress, err)
	}

	c := &Client{client: zb, config: cfg}
	if err := c.HealthCheck(context.Background()); err != nil {
		zb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck asks the broker for its topology. The worker registers it as
// the zeebe readiness check.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe broker %s unreachable: %w", c.config.GatewayAddress, err)
	}
	return nil
}

// ExecuteWithRetry sends a job command, repeating it while the broker
// reports a transient failure. The final error is mapped to a StandardError.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	rc := c.config.RetryConfig
	for attempt := 0; ; attempt++ {
		result, err := commandFunc(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == rc.MaxRetries || !isRetryableZeebeError(err) {
			return nil, mapZeebeError(err, operationName, attempt)
		}

		t := time.NewTimer(rc.delay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%s abandoned after %d attempts: %w", operationName, attempt+1, ctx.Err())
		}
	}
}

var (
	unreachablePhrases = []string{"connection refused", "connection reset", "unavailable", "unreachable", "broken pipe"}
	timeoutPhrases     = []string{"timeout", "deadline exceeded"}
)

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	return containsAny(msg, unreachablePhrases) || containsAny(msg, timeoutPhrases)
}

func mapZeebeError(err error, operation string, attempt int) error {
	msg := strings.ToLower(err.Error())
	wrapped := fmt.Errorf("zeebe %s failed (attempt %d): %w", operation, attempt+1, err)

	switch {
	case containsAny(msg, timeoutPhrases):
		return errors.NewTimeoutError("zeebe", wrapped)
	case strings.Contains(msg, "not found"):
		// The job was already completed, failed or timed out elsewhere.
		return errors.NewResourceNotFoundError("zeebe", wrapped.Error())
	case strings.Contains(msg, "already exists"):
		return errors.NewBusinessRuleError(wrapped.Error(), "job command conflicts with broker state")
	case containsAny(msg, []string{"permission denied", "unauthorized"}):
		return errors.NewAuthenticationError(wrapped.Error())
	default:
		return errors.NewExternalServiceError("zeebe", wrapped)
	}
}
