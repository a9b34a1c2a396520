// Package model defines data structures for the chatbot engine.
package model

import (
	"time"
)

// UnlimitedCeiling marks a tenant with no quota ceiling. Usage is still
// counted for analytics.
const UnlimitedCeiling = -1

// Tenant is the isolation boundary for one chatbot. All quotas, rate limits,
// conversations, and document retrieval are keyed by its ID. The index
// namespace is immutable for the tenant's lifetime.
type Tenant struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	IndexNamespace string    `json:"index_namespace"`
	QuotaCeiling   int64     `json:"quota_ceiling"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Deleted        bool      `json:"deleted,omitempty"`
}

// Unlimited reports whether the tenant has no quota ceiling.
func (t *Tenant) Unlimited() bool {
	return t.QuotaCeiling < 0
}

// CreateTenantRequest is the request to provision a new tenant.
type CreateTenantRequest struct {
	Name         string `json:"name"`
	QuotaCeiling int64  `json:"quota_ceiling"`
}

// QuotaCounter is the durable usage counter for one tenant and one period.
// Count is monotonically non-decreasing within a period and is incremented
// exactly once per committed request.
type QuotaCounter struct {
	TenantID  string    `json:"tenant_id"`
	Period    string    `json:"period"`
	Count     int64     `json:"count"`
	Ceiling   int64     `json:"ceiling"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageDay is one day of usage analytics for a tenant.
type UsageDay struct {
	Date     string `json:"date"`
	Messages int64  `json:"messages"`
}
