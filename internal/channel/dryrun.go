package channel

import (
	"context"

	"github.com/google/uuid"

	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
)

// DryRun logs what would have been sent and always succeeds.
type DryRun struct {
	log logger.Logger
}

func NewDryRun(log logger.Logger) *DryRun {
	return &DryRun{log: log.WithFields(map[string]interface{}{"adapter": "dry-run"})}
}

func (d *DryRun) Send(_ context.Context, target models.Target, subject *string, body string) models.SendOutcome {
	fields := map[string]interface{}{
		"targetId": target.ID,
		"channel":  target.Channel.String(),
		"handle":   target.Handle,
		"body":     body,
	}
	if subject != nil {
		fields["subject"] = *subject
	}
	d.log.Info("dry-run send", fields)
	return models.Sent("dry-run-" + uuid.NewString())
}
