// Package app runs the report server: it wires the pipeline's config, paths,
// metrics registry and tracer into a chi router and manages the HTTP server's
// lifecycle.
//
// # Middleware order
//
//	RequestID → Tracing → StructuredLogger → Metrics → Recoverer
//
// /metrics is mounted outside the instrumented group so scrapes do not
// count themselves.
//
// # Shutdown
//
// Run blocks until the context is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for at most server.shutdown_timeout.
package app
