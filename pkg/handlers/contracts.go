package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

// ScopeMiddleware attaches a database scope to the request context.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// IngestContractRequest is the body of POST /api/contracts.
type IngestContractRequest struct {
	UserID   string `json:"user_id"`
	Title    string `json:"title"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
}

// IngestContractResponse is returned once extraction has been dispatched.
type IngestContractResponse struct {
	ContractID uuid.UUID              `json:"contract_id"`
	Title      string                 `json:"title"`
	Status     *models.ContractStatus `json:"status"`
}

// ReprocessResponse reports whether a new extraction run was dispatched.
type ReprocessResponse struct {
	ContractID uuid.UUID `json:"contract_id"`
	Started    bool      `json:"started"`
}

// ContractHandler exposes the contract pipeline over HTTP.
type ContractHandler struct {
	pipeline services.ContractPipelineService
	semantic services.SemanticAnalysisService
	alerts   services.AlertSchedulerService
	logger   *zap.Logger
}

// NewContractHandler creates a new contract handler.
func NewContractHandler(
	pipeline services.ContractPipelineService,
	semantic services.SemanticAnalysisService,
	alerts services.AlertSchedulerService,
	logger *zap.Logger,
) *ContractHandler {
	return &ContractHandler{
		pipeline: pipeline,
		semantic: semantic,
		alerts:   alerts,
		logger:   logger.Named("contract-handler"),
	}
}

// RegisterRoutes registers the contract handler's routes on the given mux.
func (h *ContractHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/contracts"

	mux.HandleFunc("POST "+base, scope(h.Ingest))
	mux.HandleFunc("POST "+base+"/{id}/reprocess", scope(h.Reprocess))
	mux.HandleFunc("POST "+base+"/{id}/reanalyze", scope(h.Reanalyze))
	mux.HandleFunc("GET "+base+"/{id}/status", scope(h.GetStatus))
	mux.HandleFunc("GET "+base+"/{id}/alerts", scope(h.ListAlerts))
}

// Ingest handles POST /api/contracts
// Creates a pending contract for a stored document and starts extraction.
func (h *ContractHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.badRequest(w, "invalid_user_id", "Invalid user ID format")
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		h.badRequest(w, "invalid_request", "file_path is required")
		return
	}

	c, err := h.pipeline.Ingest(r.Context(), services.IngestRequest{
		UserID:   userID,
		Title:    strings.TrimSpace(req.Title),
		FilePath: req.FilePath,
		MimeType: req.MimeType,
	})
	if err != nil {
		writeServiceError(w, err, "Ingest contract", h.logger)
		return
	}

	response := ApiResponse{
		Success: true,
		Data: IngestContractResponse{
			ContractID: c.ID,
			Title:      c.Title,
			Status:     models.StatusOf(c),
		},
	}
	if err := WriteJSON(w, http.StatusAccepted, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Reprocess handles POST /api/contracts/{id}/reprocess
// Dispatches a new extraction run unless one is already in flight.
func (h *ContractHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}

	started, err := h.pipeline.Reprocess(r.Context(), contractID)
	if err != nil {
		writeServiceError(w, err, "Reprocess contract", h.logger)
		return
	}

	status := http.StatusAccepted
	if !started {
		status = http.StatusOK
	}
	response := ApiResponse{
		Success: true,
		Data:    ReprocessResponse{ContractID: contractID, Started: started},
	}
	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Reanalyze handles POST /api/contracts/{id}/reanalyze?force=
// Returns the cached analysis when fresh; otherwise spends a credit.
func (h *ContractHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, "invalid_force", "force must be a boolean")
			return
		}
		force = parsed
	}

	result, err := h.semantic.Reanalyze(r.Context(), contractID, force)
	if err != nil {
		writeServiceError(w, err, "Reanalyze contract", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// GetStatus handles GET /api/contracts/{id}/status
func (h *ContractHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.pipeline.GetStatus(r.Context(), contractID)
	if err != nil {
		writeServiceError(w, err, "Get contract status", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ListAlerts handles GET /api/contracts/{id}/alerts
func (h *ContractHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	contractID, ok := ParseContractID(w, r, h.logger)
	if !ok {
		return
	}

	events, err := h.alerts.ListForContract(r.Context(), contractID)
	if err != nil {
		writeServiceError(w, err, "List contract alerts", h.logger)
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: events}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ContractHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
