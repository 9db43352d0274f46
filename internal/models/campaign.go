// internal/models/campaign.go
package models

import "time"

// TargetError is the per-target reason attached to a failed send.
type TargetError struct {
	TargetID     string    `json:"targetId"`
	Handle       string    `json:"handle"`
	ErrorKind    ErrorKind `json:"errorKind"`
	ErrorMessage string    `json:"errorMessage"`
}

// CampaignResult is the aggregate of one campaign run.
//
// Sent + Failed + Cancelled == Total - Skipped and len(Errors) == Failed
// hold once the run has returned. Cancelled is only non-zero when the
// caller cancelled the run.
type CampaignResult struct {
	RunID      string        `json:"runId"`
	TemplateID string        `json:"templateId"`
	Channel    Channel       `json:"channel"`
	Total      int           `json:"total"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Cancelled  int           `json:"cancelled"`
	Errors     []TargetError `json:"errors"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

func (r *CampaignResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Consistent checks the aggregate invariants.
func (r *CampaignResult) Consistent() bool {
	return r.Sent+r.Failed+r.Cancelled == r.Total-r.Skipped &&
		len(r.Errors) == r.Failed &&
		r.Sent+r.Failed <= r.Total
}
