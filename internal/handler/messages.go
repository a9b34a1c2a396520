package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/chatbot-engine/internal/admission"
	"github.com/capitalize-ai/chatbot-engine/internal/convlog"
	"github.com/capitalize-ai/chatbot-engine/internal/middleware"
	"github.com/capitalize-ai/chatbot-engine/internal/model"
	"github.com/capitalize-ai/chatbot-engine/internal/pipeline"
	"github.com/capitalize-ai/chatbot-engine/internal/store"
	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
	"go.uber.org/zap"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	pipeline *pipeline.Pipeline
	log      *convlog.Log
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(p *pipeline.Pipeline, log *convlog.Log, l *logger.Logger) *MessageHandler {
	return &MessageHandler{
		pipeline: p,
		log:      log,
		logger:   l,
	}
}

// Send handles POST /api/v1/conversations/:id/messages. The response status
// mirrors the pipeline outcome: committed and degraded turns are 200,
// admission and quota rejections are 429 with Retry-After where known.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.pipeline.HandleMessage(ctx, pipeline.Request{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Identity:       tenantID + ":" + clientIP(r),
		Text:           req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTenantNotFound):
			writeError(w, http.StatusNotFound, "tenant not found")
		case errors.Is(err, pipeline.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "invalid request")
		case errors.Is(err, admission.ErrLimiterUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		default:
			h.logger.Error("message pipeline failed",
				zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to process message")
		}
		return
	}

	body := &model.SendMessageResponse{
		Status:         res.Status,
		UserMessage:    res.UserMessage,
		AssistantText:  res.AssistantText,
		RemainingQuota: res.RemainingQuota,
	}

	switch res.Status {
	case model.StatusRejectedByAdmission, model.StatusRejectedByQuota:
		// Admission denials reset at the window edge, quota denials at
		// the period boundary; both carry the delay in RetryAfter.
		retryAfter := int64(res.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		body.RetryAfter = &retryAfter
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		writeJSON(w, http.StatusTooManyRequests, body)
	default:
		writeJSON(w, http.StatusOK, body)
	}
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	msgs, err := h.log.History(ctx, tenantID, conversationID, limit)
	if err != nil {
		h.logger.Error("failed to load history",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	resp := &model.ListMessagesResponse{Messages: msgs}
	if n := len(msgs); n > 0 {
		resp.LastSequence = msgs[n-1].Sequence
	}
	writeJSON(w, http.StatusOK, resp)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
