package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable entry in a conversation. Sequence numbers are
// assigned by the conversation log, strictly increasing per conversation,
// never reused or reordered.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Generation metadata, set on assistant messages only.
	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Fallback  bool    `json:"fallback,omitempty"`

	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessageRequest is the inbound user turn.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is returned to the caller after a turn resolves.
type SendMessageResponse struct {
	Status         Status   `json:"status"`
	UserMessage    *Message `json:"user_message,omitempty"`
	AssistantText  string   `json:"assistant_text,omitempty"`
	RemainingQuota *int64   `json:"remaining_quota,omitempty"`
	RetryAfter     *int64   `json:"retry_after_seconds,omitempty"`
}

// ListMessagesResponse is the response for listing conversation history.
type ListMessagesResponse struct {
	Messages     []Message `json:"messages"`
	LastSequence uint64    `json:"last_sequence"`
}
