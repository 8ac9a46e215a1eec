package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/llm"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(w, http.StatusNotFound, "not_found", "contract not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "contract not found", body["message"])
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteJSON(w, http.StatusAccepted, ApiResponse{Success: true, Data: map[string]int{"count": 5}}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")
}

func TestWriteJSON_UnencodableData(t *testing.T) {
	w := httptest.NewRecorder()
	assert.Error(t, WriteJSON(w, http.StatusOK, make(chan int)))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("lookup: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"insufficient credits", apperrors.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{"already processing", apperrors.ErrAlreadyProcessing, http.StatusConflict, "already_processing"},
		{"text changed during analysis", fmt.Errorf("semantic analysis failed: %w", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{"no extracted text", fmt.Errorf("%w: no extracted text", apperrors.ErrAIPreconditionFailed), http.StatusUnprocessableEntity, "ai_precondition_failed"},
		{"engine missing", fmt.Errorf("%w: %w", apperrors.ErrAIPreconditionFailed, apperrors.ErrAINotConfigured), http.StatusServiceUnavailable, "ai_not_configured"},
		{"invalid amount", apperrors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"llm quota", fmt.Errorf("semantic analysis failed: %w", llm.NewError(llm.KindQuota, "quota exhausted", nil)), http.StatusTooManyRequests, "ai_quota_exceeded"},
		{"llm config", llm.NewError(llm.KindConfig, "bad key", nil), http.StatusServiceUnavailable, "ai_misconfigured"},
		{"llm transient", llm.NewError(llm.KindTransient, "overloaded", nil), http.StatusBadGateway, "ai_service_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteServiceError_SanitizesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()

	writeServiceError(w, errors.New("failed to connect to postgres://ekaya:secret@db:5432/renewals"), "Get status", zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}
