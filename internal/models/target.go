// internal/models/target.go
package models

import "time"

type TargetStatus string

const (
	TargetPending TargetStatus = "pending"
	TargetSent    TargetStatus = "sent"
	TargetFailed  TargetStatus = "failed"
	TargetSkipped TargetStatus = "skipped"
)

func (s TargetStatus) Terminal() bool {
	return s == TargetSent || s == TargetFailed || s == TargetSkipped
}

// CanTransitionTo reports whether s -> next is allowed. Only pending targets
// move, and only into a terminal state.
func (s TargetStatus) CanTransitionTo(next TargetStatus) bool {
	return s == TargetPending && next.Terminal()
}

// Target is a contact or a channel-native destination such as a subreddit.
type Target struct {
	ID              string       `json:"id" db:"id"`
	Channel         Channel      `json:"channel" db:"channel"`
	Handle          string       `json:"handle" db:"handle"`
	DisplayName     *string      `json:"displayName,omitempty" db:"display_name"`
	Status          TargetStatus `json:"status" db:"status"`
	Tags            []string     `json:"tags,omitempty" db:"tags"`
	LastContactedAt *time.Time   `json:"lastContactedAt,omitempty" db:"last_contacted_at"`
}

// Name returns the display name when present, otherwise the handle.
func (t Target) Name() string {
	if t.DisplayName != nil && *t.DisplayName != "" {
		return *t.DisplayName
	}
	return t.Handle
}
