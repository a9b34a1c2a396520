// Package store provides durable persistence for tenants, conversations,
// messages, and quota counters.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/chatbot-engine/internal/model"
)

var (
	// ErrTenantNotFound is returned when a tenant does not exist or is
	// soft-deleted.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConversationNotFound is returned when a conversation does not
	// exist under the given tenant.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Store is the durable store consumed by the pipeline. Implementations must
// scope every lookup by tenant ID; no call may return data belonging to a
// different tenant.
type Store interface {
	// CreateTenant persists a new tenant.
	CreateTenant(ctx context.Context, t *model.Tenant) error

	// GetTenant returns a tenant by ID. Soft-deleted tenants are not found.
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)

	// ListTenants returns all live tenants.
	ListTenants(ctx context.Context) ([]model.Tenant, error)

	// DeleteTenant soft-deletes a tenant. Conversations referencing it
	// remain readable.
	DeleteTenant(ctx context.Context, id string) error

	// AppendMessage durably appends a message, assigning the next sequence
	// number for its conversation atomically. The conversation row is
	// created on first append.
	AppendMessage(ctx context.Context, msg *model.Message) (uint64, error)

	// RecentMessages returns the most recent limit messages of a
	// conversation, oldest first.
	RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error)

	// ListConversations returns a page of a tenant's conversations, newest
	// first.
	ListConversations(ctx context.Context, tenantID string, limit, offset int) ([]model.Conversation, int, error)

	// IncrementQuota durably adds one unit to the tenant's counter for the
	// period and returns the new count.
	IncrementQuota(ctx context.Context, tenantID, period string) (int64, error)

	// QuotaCount returns the durable count for a tenant and period.
	QuotaCount(ctx context.Context, tenantID, period string) (int64, error)

	// QuotaCounts returns all durable counts for a period, keyed by tenant,
	// used to rebuild the fast counters after a restart.
	QuotaCounts(ctx context.Context, period string) (map[string]int64, error)

	// IncrementUsage upserts the per-day analytics counter for a tenant.
	IncrementUsage(ctx context.Context, tenantID, date string) error

	// Usage returns up to days of daily analytics for a tenant, most
	// recent first.
	Usage(ctx context.Context, tenantID string, days int) ([]model.UsageDay, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
