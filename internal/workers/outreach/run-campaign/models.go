package runcampaign

import "outreach-engine/internal/models"

// Output is written back to the process instance as job variables.
type Output struct {
	RunID      string               `json:"runId"`
	TemplateID string               `json:"templateId"`
	Channel    string               `json:"channel"`
	Status     string               `json:"campaignStatus"`
	Total      int                  `json:"total"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	Cancelled  int                  `json:"cancelled"`
	Errors     []models.TargetError `json:"errors"`
	DurationMs int64                `json:"durationMs"`
}

const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
)
