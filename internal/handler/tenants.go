package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/internal/middleware"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/quota"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
)

// TenantHandler handles tenant provisioning and usage endpoints. All routes
// require the admin scope.
type TenantHandler struct {
	store          store.Store
	quota          *quota.Tracker
	defaultCeiling int64
	logger         *logger.Logger
}

// NewTenantHandler creates a new tenant handler.
func NewTenantHandler(st store.Store, tracker *quota.Tracker, defaultCeiling int64, log *logger.Logger) *TenantHandler {
	return &TenantHandler{
		store:          st,
		quota:          tracker,
		defaultCeiling: defaultCeiling,
		logger:         log,
	}
}

// Create handles POST /api/v1/tenants. The index namespace is minted here
// and never changes for the tenant's lifetime.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTenantName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ceiling := req.QuotaCeiling
	if ceiling == 0 {
		ceiling = h.defaultCeiling
	}

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Name:           req.Name,
		IndexNamespace: "tenant-" + uuid.Must(uuid.NewV7()).String(),
		QuotaCeiling:   ceiling,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateTenant(r.Context(), tenant); err != nil {
		h.logger.Error("failed to create tenant", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// Get handles GET /api/v1/tenants/:id
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTenantID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("failed to get tenant", zap.String("tenant_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

// List handles GET /api/v1/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("failed to list tenants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tenants")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"total":   len(tenants),
	})
}

// Delete handles DELETE /api/v1/tenants/:id. Deletion is soft: the tenant
// stops serving but its conversations remain readable.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTenantID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.DeleteTenant(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("failed to delete tenant", zap.String("tenant_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete tenant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /api/v1/tenants/:id/usage, returning the current
// period's quota position plus recent daily analytics.
func (h *TenantHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTenantID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := h.store.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		h.logger.Error("failed to get tenant", zap.String("tenant_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get tenant")
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 && parsed <= 90 {
			days = parsed
		}
	}

	daily, err := h.store.Usage(ctx, id, days)
	if err != nil {
		h.logger.Error("failed to load usage", zap.String("tenant_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	resp := map[string]interface{}{
		"tenant_id":     tenant.ID,
		"period":        h.quota.Period(),
		"used":          h.quota.Count(tenant.ID),
		"quota_ceiling": tenant.QuotaCeiling,
		"daily":         daily,
	}
	if !tenant.Unlimited() {
		remaining := tenant.QuotaCeiling - h.quota.Count(tenant.ID)
		if remaining < 0 {
			remaining = 0
		}
		resp["remaining"] = remaining
	}
	writeJSON(w, http.StatusOK, resp)
}
