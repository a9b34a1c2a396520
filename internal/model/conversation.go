package model

import (
	"time"
)

// Conversation is an ordered, append-only message thread owned by exactly
// one tenant. Created on first message; never mutated except by appends.
type Conversation struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count,omitempty"`
	LastSequence uint64    `json:"last_sequence,omitempty"`
}

// ListConversationsResponse is the response for listing a tenant's
// conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
