package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"neighborsos/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

// respondWithError maps a failure to the envelope. Server-side failures
// keep their detail in the logs; the body carries only the generic
// message.
func respondWithError(w http.ResponseWriter, status int, err error, message string) {
	if status >= http.StatusInternalServerError {
		util.Error("Request failed", zap.Int("status", status), zap.Error(err))
		respondWithJSON(w, status, Response{Success: false, Error: message})
		return
	}
	respondWithJSON(w, status, errorResponse(err, message))
}
