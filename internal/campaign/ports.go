package campaign

import (
	"context"
	"time"

	"outreach-engine/internal/audit"
	"outreach-engine/internal/channel"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
	"outreach-engine/internal/scheduler"
)

// TemplateSource returns store.ErrNotFound or registry.ErrTemplateNotFound
// for unknown IDs.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
}

// TargetSource returns pending targets of a channel, oldest first. limit <= 0
// means no cap.
type TargetSource interface {
	GetPendingTargets(ctx context.Context, ch models.Channel, limit int) ([]models.Target, error)
}

// StatusSink must be safe for concurrent use.
type StatusSink interface {
	UpdateTargetStatus(ctx context.Context, targetID string, status models.TargetStatus, lastContactedAt *time.Time) error
}

type CooldownPolicy interface {
	Eligible(ctx context.Context, target models.Target) (bool, string, error)
	MarkContacted(ctx context.Context, target models.Target, at time.Time) error
}

type TargetLease interface {
	Acquire(ctx context.Context, target models.Target, owner string) (bool, error)
	Release(ctx context.Context, target models.Target, owner string) error
}

// Dependencies are the collaborators shared by every lane. Cooldown and
// Lease are optional.
type Dependencies struct {
	Templates TemplateSource
	Targets   TargetSource
	Status    StatusSink
	Audit     audit.Sink
	Cooldown  CooldownPolicy
	Lease     TargetLease
	Constants map[string]string
	Logger    logger.Logger
}

// LaneConfig is one channel's adapter and pacing.
type LaneConfig struct {
	Adapter   channel.Adapter
	Scheduler scheduler.Config
}
