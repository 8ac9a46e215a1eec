package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

type contractHandlerFixture struct {
	pipeline *mockPipelineService
	semantic *mockSemanticService
	alerts   *mockAlertService
	mux      *http.ServeMux
}

func newContractHandlerFixture(t *testing.T) *contractHandlerFixture {
	t.Helper()
	f := &contractHandlerFixture{
		pipeline: &mockPipelineService{},
		semantic: &mockSemanticService{},
		alerts:   &mockAlertService{},
		mux:      http.NewServeMux(),
	}
	NewContractHandler(f.pipeline, f.semantic, f.alerts, zap.NewNop()).RegisterRoutes(f.mux, passthroughScope)
	return f
}

func (f *contractHandlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	if data != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, data))
	}
	return ApiResponse{Success: envelope.Success, Message: envelope.Message}
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestContractHandler_Ingest(t *testing.T) {
	f := newContractHandlerFixture(t)
	userID := uuid.New()

	rec := f.do(http.MethodPost, "/api/contracts", IngestContractRequest{
		UserID:   userID.String(),
		Title:    "  Maintenance ascenseur ",
		FilePath: userID.String() + "/ascenseur.pdf",
		MimeType: "application/pdf",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var data IngestContractResponse
	resp := decodeAPIResponse(t, rec, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "Maintenance ascenseur", data.Title)
	require.NotNil(t, data.Status)
	assert.Equal(t, models.ExtractionProcessing, data.Status.OCRStatus)

	assert.Equal(t, userID, f.pipeline.lastReq.UserID)
	assert.Equal(t, "application/pdf", f.pipeline.lastReq.MimeType)
}

func TestContractHandler_Ingest_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"malformed body", "not an object", "invalid_request"},
		{"bad user id", IngestContractRequest{UserID: "nope", FilePath: "a.pdf"}, "invalid_user_id"},
		{"missing file path", IngestContractRequest{UserID: uuid.NewString()}, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContractHandlerFixture(t)

			rec := f.do(http.MethodPost, "/api/contracts", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeErrorCode(t, rec))
		})
	}
}

func TestContractHandler_Reprocess(t *testing.T) {
	f := newContractHandlerFixture(t)
	f.pipeline.started = true
	id := uuid.New()

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/contracts/%s/reprocess", id), nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var data ReprocessResponse
	decodeAPIResponse(t, rec, &data)
	assert.True(t, data.Started)
	assert.Equal(t, []uuid.UUID{id}, f.pipeline.reprocess)
}

func TestContractHandler_Reprocess_AlreadyRunning(t *testing.T) {
	f := newContractHandlerFixture(t)

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/contracts/%s/reprocess", uuid.New()), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data ReprocessResponse
	decodeAPIResponse(t, rec, &data)
	assert.False(t, data.Started)
}

func TestContractHandler_Reprocess_InvalidID(t *testing.T) {
	f := newContractHandlerFixture(t)

	rec := f.do(http.MethodPost, "/api/contracts/not-a-uuid/reprocess", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_contract_id", decodeErrorCode(t, rec))
	assert.Empty(t, f.pipeline.reprocess)
}

func TestContractHandler_Reanalyze_ForceFlag(t *testing.T) {
	f := newContractHandlerFixture(t)
	id := uuid.New()

	for _, path := range []string{
		fmt.Sprintf("/api/contracts/%s/reanalyze", id),
		fmt.Sprintf("/api/contracts/%s/reanalyze?force=true", id),
		fmt.Sprintf("/api/contracts/%s/reanalyze?force=0", id),
	} {
		rec := f.do(http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.Equal(t, []bool{false, true, false}, f.semantic.forces)
}

func TestContractHandler_Reanalyze_InvalidForce(t *testing.T) {
	f := newContractHandlerFixture(t)

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/contracts/%s/reanalyze?force=maybe", uuid.New()), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_force", decodeErrorCode(t, rec))
	assert.Empty(t, f.semantic.forces)
}

func TestContractHandler_Reanalyze_ReturnsResult(t *testing.T) {
	f := newContractHandlerFixture(t)
	id := uuid.New()
	remaining := 4
	f.semantic.result = &services.ReanalyzeResult{
		ContractID:        id,
		AIStatus:          models.AICompleted,
		HasCachedAnalysis: true,
		CreditsRemaining:  &remaining,
		Committed:         []string{"end_date"},
	}

	rec := f.do(http.MethodPost, fmt.Sprintf("/api/contracts/%s/reanalyze?force=true", id), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data services.ReanalyzeResult
	decodeAPIResponse(t, rec, &data)
	assert.Equal(t, id, data.ContractID)
	require.NotNil(t, data.CreditsRemaining)
	assert.Equal(t, 4, *data.CreditsRemaining)
	assert.Equal(t, []string{"end_date"}, data.Committed)
}

func TestContractHandler_Reanalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient credits", apperrors.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{"already processing", apperrors.ErrAlreadyProcessing, http.StatusConflict, "already_processing"},
		{"no text", fmt.Errorf("%w: no extracted text", apperrors.ErrAIPreconditionFailed), http.StatusUnprocessableEntity, "ai_precondition_failed"},
		{"unknown contract", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContractHandlerFixture(t)
			f.semantic.err = tt.err

			rec := f.do(http.MethodPost, fmt.Sprintf("/api/contracts/%s/reanalyze?force=true", uuid.New()), nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeErrorCode(t, rec))
		})
	}
}

func TestContractHandler_GetStatus(t *testing.T) {
	f := newContractHandlerFixture(t)
	id := uuid.New()
	f.pipeline.status = &models.ContractStatus{
		ContractID:     id,
		OCRStatus:      models.ExtractionCompleted,
		AIStatus:       models.AIFailed,
		HasOCRText:     true,
		ProcessingMode: models.ProcessingPatternOnly,
		AIError:        "semantic analysis failed",
	}

	rec := f.do(http.MethodGet, fmt.Sprintf("/api/contracts/%s/status", id), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data models.ContractStatus
	decodeAPIResponse(t, rec, &data)
	assert.Equal(t, *f.pipeline.status, data)
}

func TestContractHandler_GetStatus_NotFound(t *testing.T) {
	f := newContractHandlerFixture(t)
	f.pipeline.err = apperrors.ErrNotFound

	rec := f.do(http.MethodGet, fmt.Sprintf("/api/contracts/%s/status", uuid.New()), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContractHandler_ListAlerts(t *testing.T) {
	f := newContractHandlerFixture(t)
	id := uuid.New()
	f.alerts.events = []models.AlertEvent{{
		ID:           uuid.New(),
		ContractID:   id,
		Type:         models.AlertTypeNoticeDeadline,
		ScheduledFor: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		Status:       models.AlertStatusPending,
	}}

	rec := f.do(http.MethodGet, fmt.Sprintf("/api/contracts/%s/alerts", id), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var data []models.AlertEvent
	decodeAPIResponse(t, rec, &data)
	require.Len(t, data, 1)
	assert.Equal(t, models.AlertTypeNoticeDeadline, data[0].Type)
}

func TestContractHandler_ListAlerts_EmptyIsArray(t *testing.T) {
	f := newContractHandlerFixture(t)

	rec := f.do(http.MethodGet, fmt.Sprintf("/api/contracts/%s/alerts", uuid.New()), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestContractHandler_RoutesUseScope(t *testing.T) {
	var scoped int
	scope := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scoped++
			next(w, r)
		}
	}
	mux := http.NewServeMux()
	NewContractHandler(&mockPipelineService{}, &mockSemanticService{}, &mockAlertService{}, zap.NewNop()).RegisterRoutes(mux, scope)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/contracts/%s/status", uuid.New()), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, scoped)
}
