package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatbot-engine/pkg/logger"
)

// writeJSON writes a JSON response. The status line is already out when
// encoding starts, so an encode failure can only be logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Global().Warn("response encode failed",
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

type errorBody struct {
	Error string `json:"error"`
}
