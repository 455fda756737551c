package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/render"

	"finset/internal/infrastructure"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to an APIError and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	apiErr := ToAPIError(err)

	level := slog.LevelWarn
	if apiErr.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", apiErr.StatusCode),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && apiErr.StatusCode >= http.StatusInternalServerError {
		apiErr = NewWithDetails(apiErr.StatusCode, apiErr.ErrorCode, apiErr.Message, PanicRecovery{
			Message: err.Error(),
			Stack:   getStackTrace(),
		})
	}
	h.render(w, r, apiErr)
}

// ToAPIError maps err onto the API error taxonomy. APIErrors pass through,
// missing artifacts become 404 and context errors become 504.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrTimeout
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	default:
		return ErrInternalServer
	}
}

// HandlePanic responds to a recovered panic
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	apiErr := ErrPanic(recovered)
	if !h.includeStack {
		apiErr.Details = nil
	} else {
		apiErr.Details = PanicRecovery{Message: fmt.Sprintf("%v", recovered), Stack: getStackTrace()}
	}
	h.render(w, r, apiErr)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, NotFoundError(r.URL.Path))
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, MethodNotAllowed(r.Method))
}

func (h *ErrorHandler) render(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	resp := NewErrorResponse(apiErr)
	resp.TraceID = infrastructure.GetTraceID(r.Context())
	if err := render.Render(w, r, resp); err != nil {
		h.logger.ErrorContext(r.Context(), "error response render failed", slog.String("error", err.Error()))
	}
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
