package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

// PurchaseCreditsRequest is the body of POST /api/users/{uid}/credits/purchase.
type PurchaseCreditsRequest struct {
	Amount int `json:"amount"`
}

// CreditHandler exposes credit balances and purchases.
type CreditHandler struct {
	credits services.CreditLedgerService
	logger  *zap.Logger
}

// NewCreditHandler creates a new credit handler.
func NewCreditHandler(credits services.CreditLedgerService, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{
		credits: credits,
		logger:  logger.Named("credit-handler"),
	}
}

// RegisterRoutes registers the credit handler's routes on the given mux.
func (h *CreditHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/users/{uid}/credits"

	mux.HandleFunc("GET "+base, scope(h.GetBalance))
	mux.HandleFunc("POST "+base+"/purchase", scope(h.Purchase))
}

// GetBalance handles GET /api/users/{uid}/credits
// The ledger is created on first access and reset when its month has passed.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	balance, err := h.credits.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Get credit balance", h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: balance}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Purchase handles POST /api/users/{uid}/credits/purchase
func (h *CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req PurchaseCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	balance, err := h.credits.Purchase(r.Context(), userID, req.Amount)
	if err != nil {
		writeServiceError(w, err, "Purchase credits", h.logger)
		return
	}

	h.logger.Info("Credits purchased",
		zap.String("user_id", userID.String()),
		zap.Int("amount", req.Amount),
		zap.Int("remaining", balance.Remaining))

	response := ApiResponse{
		Success: true,
		Data:    balance,
		Message: "credits added",
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
