// internal/models/audit.go
package models

import "time"

// AuditAction is the closed set of actions written to the audit trail.
type AuditAction string

const (
	ActionMessageSend   AuditAction = "message.send"
	ActionPostSubmit    AuditAction = "post.submit"
	ActionCommentSubmit AuditAction = "comment.submit"
	ActionTargetSkip    AuditAction = "target.skip"
)

// ActionFor maps a template kind to the audit action a send produces.
func ActionFor(kind TemplateKind) AuditAction {
	switch kind {
	case KindPost:
		return ActionPostSubmit
	case KindComment:
		return ActionCommentSubmit
	default:
		return ActionMessageSend
	}
}

// Skip reasons recorded under AuditMetadata.SkipReason.
const (
	SkipReasonCooldown  = "cooldown"
	SkipReasonLeaseHeld = "lease_held"
)

// AuditMetadata holds the only keys an audit entry may carry.
type AuditMetadata struct {
	TemplateID       string       `json:"template_id,omitempty"`
	Kind             TemplateKind `json:"kind,omitempty"`
	ExternalID       string       `json:"external_id,omitempty"`
	ErrorKind        ErrorKind    `json:"error_kind,omitempty"`
	UnresolvedTokens []string     `json:"unresolved_tokens,omitempty"`
	SkipReason       string       `json:"skip_reason,omitempty"`
	DurationMs       int64        `json:"duration_ms,omitempty"`
}

// Map flattens the metadata into primitive values, omitting empty keys.
func (m AuditMetadata) Map() map[string]interface{} {
	out := make(map[string]interface{})
	if m.TemplateID != "" {
		out["template_id"] = m.TemplateID
	}
	if m.Kind != "" {
		out["kind"] = string(m.Kind)
	}
	if m.ExternalID != "" {
		out["external_id"] = m.ExternalID
	}
	if m.ErrorKind != "" {
		out["error_kind"] = string(m.ErrorKind)
	}
	if len(m.UnresolvedTokens) > 0 {
		tokens := make([]string, len(m.UnresolvedTokens))
		copy(tokens, m.UnresolvedTokens)
		out["unresolved_tokens"] = tokens
	}
	if m.SkipReason != "" {
		out["skip_reason"] = m.SkipReason
	}
	if m.DurationMs > 0 {
		out["duration_ms"] = m.DurationMs
	}
	return out
}

// AuditEntry is an immutable record of one attempted action.
type AuditEntry struct {
	ID           string        `json:"id" db:"id"`
	RunID        string        `json:"runId" db:"run_id"`
	Channel      Channel       `json:"channel" db:"channel"`
	Action       AuditAction   `json:"action" db:"action"`
	Succeeded    bool          `json:"succeeded" db:"succeeded"`
	TargetRef    *string       `json:"targetRef,omitempty" db:"target_ref"`
	Metadata     AuditMetadata `json:"metadata" db:"metadata"`
	ErrorMessage *string       `json:"errorMessage,omitempty" db:"error_message"`
	Timestamp    time.Time     `json:"timestamp" db:"created_at"`
}
