package campaign

import (
	"context"
	"encoding/json"

	apperrors "outreach-engine/internal/common/errors"
	"outreach-engine/internal/common/validation"
	"outreach-engine/internal/models"
)

var runSchema = validation.MustCompile(validation.RunCampaignSchema)

// Request is a campaign run as it arrives on the Zeebe, HTTP and AMQP
// surfaces.
type Request struct {
	TemplateID string            `json:"templateId"`
	Channel    string            `json:"channel"`
	Limit      int               `json:"limit,omitempty"`
	DryRun     bool              `json:"dryRun,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	RunID      string            `json:"runId,omitempty"`
}

// ParseRequest validates raw against the run schema before decoding it.
func ParseRequest(raw []byte) (*Request, error) {
	vr, err := runSchema.ValidateJSON(raw)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if !vr.Valid {
		return nil, apperrors.NewInvalidInputError(vr.Error()).
			WithMetadata(map[string]interface{}{"fields": vr.Errors})
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	return &req, nil
}

// Executor is the part of Runner the dispatcher needs.
type Executor interface {
	Run(ctx context.Context, templateID string, ch models.Channel, limit int, opts ...RunOption) (*models.CampaignResult, error)
}

// Dispatcher routes requests to the live runner, or to the dry-run runner
// when the request asks for one.
type Dispatcher struct {
	live         Executor
	dry          Executor
	defaultLimit int
}

func NewDispatcher(live, dry Executor, defaultLimit int) *Dispatcher {
	return &Dispatcher{live: live, dry: dry, defaultLimit: defaultLimit}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*models.CampaignResult, error) {
	ch, err := models.ParseChannel(req.Channel)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	exec := d.live
	if req.DryRun {
		exec = d.dry
	}
	if exec == nil {
		return nil, apperrors.NewChannelNotConfiguredError(ch.String())
	}

	limit := req.Limit
	if limit == 0 {
		limit = d.defaultLimit
	}

	opts := []RunOption{WithConstants(req.Variables)}
	if req.RunID != "" {
		opts = append(opts, WithRunID(req.RunID))
	}
	return exec.Run(ctx, req.TemplateID, ch, limit, opts...)
}
