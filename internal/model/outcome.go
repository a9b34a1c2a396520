package model

import (
	"time"
)

// Status is the terminal outcome of one handled message.
type Status string

const (
	// StatusCommitted means the turn completed: assistant message appended,
	// quota finalized, usage recorded.
	StatusCommitted Status = "committed"
	// StatusDegraded means the turn committed with fallback assistant text
	// because generation failed or timed out.
	StatusDegraded Status = "degraded"
	// StatusRejectedByAdmission means the rate limiter denied the request
	// before any side effect.
	StatusRejectedByAdmission Status = "rejected_by_admission"
	// StatusRejectedByQuota means the tenant is at its usage ceiling.
	StatusRejectedByQuota Status = "rejected_by_quota"
	// StatusFailed means the final commit could not complete; the user
	// message may already be recorded and reconciliation is required.
	StatusFailed Status = "failed"
)

// UsageEvent is published to the usage stream once per committed turn.
type UsageEvent struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Status         Status    `json:"status"`
	Date           string    `json:"date"`
	TokensIn       int       `json:"tokens_in"`
	TokensOut      int       `json:"tokens_out"`
	CreatedAt      time.Time `json:"created_at"`
}
