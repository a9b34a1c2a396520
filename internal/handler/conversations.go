// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/internal/middleware"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
)

// ConversationHandler handles conversation endpoints. Conversations are
// created implicitly by the first message, so there is no create endpoint.
type ConversationHandler struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	convs, total, err := h.store.ListConversations(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list conversations",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	})
}
