package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/config"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services/workqueue"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version"`
	Service     string              `json:"service"`
	GoVersion   string              `json:"go_version"`
	Hostname    string              `json:"hostname"`
	Environment string              `json:"environment"`
	AIAvailable bool                `json:"ai_available"`
	Tasks       *workqueue.Progress `json:"tasks,omitempty"`
}

// ProgressReporter reports background task statistics.
type ProgressReporter interface {
	Progress() workqueue.Progress
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	tasks  ProgressReporter
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
// tasks may be nil.
func NewHealthHandler(cfg *config.Config, tasks ProgressReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, tasks: tasks, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Returns a simple "ok" status for liveness checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version, environment and
// the background queue state.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-renewals",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		AIAvailable: h.cfg.AI.IsAvailable(),
	}
	if h.tasks != nil {
		p := h.tasks.Progress()
		response.Tasks = &p
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
