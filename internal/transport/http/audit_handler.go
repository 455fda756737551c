package http

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"finset/internal/audit"
	"finset/internal/config"
	apierrors "finset/internal/errors"
	"finset/internal/files"
)

var suffixPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// AuditListResponse is the body of GET /api/v1/audit
type AuditListResponse struct {
	Suffixes []string `json:"suffixes"`
}

// AuditHandler serves the audit reports under the stats directory
type AuditHandler struct {
	paths        *config.Paths
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(paths *config.Paths, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		paths:        paths,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "audit")),
	}
}

// Routes returns a chi router for audit endpoints
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListReports)
	r.Get("/{suffix}", h.GetReport)
	return r
}

// ListReports handles GET /api/v1/audit
func (h *AuditHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	found, err := files.NewDiscovery(h.paths.StatsDir).FindByExtension(".json")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.errorHandler.HandleError(w, r, apierrors.FileSystemError("audit listing", err))
		return
	}

	resp := AuditListResponse{Suffixes: []string{}}
	for _, f := range found {
		name := strings.TrimSuffix(f.Name, ".json")
		if suffix, ok := strings.CutPrefix(name, "audit_"); ok && suffix != "" && len(f.Partitions) == 0 {
			resp.Suffixes = append(resp.Suffixes, suffix)
		}
	}
	sort.Strings(resp.Suffixes)
	render.JSON(w, r, resp)
}

// GetReport handles GET /api/v1/audit/{suffix}
func (h *AuditHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	suffix := chi.URLParam(r, "suffix")
	if !suffixPattern.MatchString(suffix) || strings.Contains(suffix, "..") {
		h.errorHandler.HandleError(w, r, apierrors.InvalidParameter("suffix", suffix))
		return
	}

	report, err := audit.LoadReport(h.paths.AuditJSONPath(suffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = apierrors.ErrReportNotFound
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "audit_report_served",
		slog.String("suffix", suffix),
		slog.Int("rows", report.Rows))
	render.JSON(w, r, report)
}
