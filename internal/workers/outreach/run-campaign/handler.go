package runcampaign

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"outreach-engine/internal/campaign"
	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/common/metrics"
	"outreach-engine/internal/models"
)

const (
	TaskType = "run-campaign"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req campaign.Request) (*models.CampaignResult, error)
}

// CommandRetrier retries transient broker failures on job commands.
type CommandRetrier interface {
	ExecuteWithRetry(ctx context.Context, commandFunc func(context.Context) (interface{}, error), operationName string) (interface{}, error)
}

type Handler struct {
	config       *Config
	dispatcher   Dispatcher
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	retrier      CommandRetrier
}

type HandlerOption func(*Handler)

// WithCommandRetry sends the complete command through r.
func WithCommandRetry(r CommandRetrier) HandlerOption {
	return func(h *Handler) { h.retrier = r }
}

func NewHandler(config *Config, dispatcher Dispatcher, log logger.Logger, opts ...HandlerOption) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:       config,
		dispatcher:   dispatcher,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	req, err := campaign.ParseRequest([]byte(job.Variables))
	if err != nil {
		h.fail(client, job, err)
		return
	}

	output, err := h.execute(ctx, req)
	if err != nil {
		h.fail(client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, req *campaign.Request) (*Output, error) {
	result, err := h.dispatcher.Dispatch(ctx, *req)
	if err != nil {
		return nil, err
	}

	h.logger.Info("campaign finished", map[string]interface{}{
		"runId":     result.RunID,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"cancelled": result.Cancelled,
	})

	return &Output{
		RunID:      result.RunID,
		TemplateID: result.TemplateID,
		Channel:    result.Channel.String(),
		Status:     statusOf(result),
		Total:      result.Total,
		Sent:       result.Sent,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Cancelled:  result.Cancelled,
		Errors:     result.Errors,
		DurationMs: result.Duration().Milliseconds(),
	}, nil
}

func statusOf(r *models.CampaignResult) string {
	switch {
	case r.Cancelled > 0:
		return StatusCancelled
	case r.Failed > 0:
		return StatusPartial
	default:
		return StatusCompleted
	}
}

// Job commands use a fresh context: the run may have used up ctx.
func (h *Handler) fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	send := func(ctx context.Context) (interface{}, error) { return cmd.Send(ctx) }
	if h.retrier != nil {
		_, err = h.retrier.ExecuteWithRetry(context.Background(), send, "complete-job")
	} else {
		_, err = send(context.Background())
	}
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

// Execute runs a request without a Zeebe job, for tests and the CLI.
func (h *Handler) Execute(ctx context.Context, req *campaign.Request) (*Output, error) {
	return h.execute(ctx, req)
}
