package handler

import (
	"net/http"

	"github.com/capitalize-ai/chatbot-engine/internal/events"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	events *events.Client
	store  store.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(eventsClient *events.Client, st store.Store) *HealthHandler {
	return &HealthHandler{
		events: eventsClient,
		store:  st,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "store unreachable",
		})
		return
	}

	if h.events != nil && !h.events.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
