package http

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"finset/internal/config"
	apierrors "finset/internal/errors"
	"finset/internal/infrastructure"
	"finset/internal/operations"
)

// RunSummary is one entry of GET /api/v1/runs
type RunSummary struct {
	ID        string   `json:"id"`
	Mode      string   `json:"mode"`
	Status    string   `json:"status"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Suffix    string   `json:"suffix,omitempty"`
	StartTime string   `json:"start_time"`
	DataTypes []string `json:"data_types"`
	Error     string   `json:"error,omitempty"`
}

// RunsResponse is the body of GET /api/v1/runs
type RunsResponse struct {
	Runs  []RunSummary `json:"runs"`
	Total int          `json:"total"`
}

// RunsHandler serves the run manifests under the runs directory
type RunsHandler struct {
	paths        *config.Paths
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(paths *config.Paths, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		paths:        paths,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "runs")),
	}
}

// Routes returns a chi router for run endpoints
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	return r
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	manifests, err := operations.ListManifests(h.paths.RunsDir, config.RunManifestFileName)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("run listing", err))
		return
	}

	resp := RunsResponse{Runs: make([]RunSummary, 0, len(manifests)), Total: len(manifests)}
	for _, m := range manifests {
		resp.Runs = append(resp.Runs, summarize(m))
	}
	render.JSON(w, r, resp)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := infrastructure.ValidateRunID(id); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidParameter("run id", id))
		return
	}

	manifest, err := operations.LoadManifestFromFile(h.paths.RunManifestPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = apierrors.ErrRunNotFound
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "run_manifest_served", slog.String("run_id", id))
	render.JSON(w, r, manifest)
}

func summarize(m *operations.PipelineManifest) RunSummary {
	return RunSummary{
		ID:        m.ID,
		Mode:      m.Mode,
		Status:    m.Status,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		Suffix:    m.Suffix,
		StartTime: m.StartTime.UTC().Format(time.RFC3339),
		DataTypes: m.DataTypes(),
		Error:     m.Error,
	}
}
