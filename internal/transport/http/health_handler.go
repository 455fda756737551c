package http

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/render"

	"finset/internal/config"
	"finset/pkg/contracts"
)

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Uptime    string                `json:"uptime"`
	DataDir   string                `json:"data_dir"`
	Version   contracts.VersionInfo `json:"version"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	paths   *config.Paths
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(paths *config.Paths, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		paths:   paths,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz. The server is degraded when the data
// directory has gone away underneath it.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		DataDir:   h.paths.DataDir,
		Version:   contracts.GetVersionInfo(),
	}
	if _, err := os.Stat(h.paths.DataDir); err != nil {
		h.logger.WarnContext(r.Context(), "data_dir_unavailable",
			slog.String("data_dir", h.paths.DataDir),
			slog.String("error", err.Error()))
		resp.Status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
