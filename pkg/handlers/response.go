package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/llm"
	"github.com/ekaya-inc/ekaya-renewals/pkg/logging"
)

// ApiResponse is the envelope of every JSON API reply.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, apperrors.ErrAlreadyProcessing):
		return http.StatusConflict, "already_processing"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrAINotConfigured):
		return http.StatusServiceUnavailable, "ai_not_configured"
	case errors.Is(err, apperrors.ErrAIPreconditionFailed):
		return http.StatusUnprocessableEntity, "ai_precondition_failed"
	case errors.Is(err, apperrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	}

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		switch llmErr.Kind {
		case llm.KindQuota:
			return http.StatusTooManyRequests, "ai_quota_exceeded"
		case llm.KindConfig:
			return http.StatusServiceUnavailable, "ai_misconfigured"
		default:
			return http.StatusBadGateway, "ai_service_error"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError logs err and writes the matching error response.
// Internal errors are sanitized before they leave the process.
func writeServiceError(w http.ResponseWriter, err error, op string, logger *zap.Logger) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.String("error", logging.SanitizeError(err)))
		message = logging.SanitizeError(err)
	} else {
		logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
