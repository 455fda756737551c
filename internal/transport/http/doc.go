// Package http implements the read-only report server behind `finset serve`.
//
// Handlers are thin: they resolve a path under the data directory, load the
// artifact a pipeline run left there and render it with chi/render. Nothing
// here writes to the data directory.
//
// # Routes
//
//	GET /healthz                 liveness plus build info
//	GET /metrics                 prometheus exposition of the pipeline registry
//	GET /api/v1/runs             run manifests, newest first
//	GET /api/v1/runs/{id}        one run manifest
//	GET /api/v1/audit            suffixes with an audit report
//	GET /api/v1/audit/{suffix}   audit report JSON
//
// # Errors
//
// Failures are rendered as an errors.ErrorResponse carrying the APIError:
//
//	{
//	    "success": false,
//	    "error": {"status_code": 404, "error_code": "RUN_NOT_FOUND", "message": "..."},
//	    "trace_id": "..."
//	}
package http
