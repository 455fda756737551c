// Package ingest plans fetch tasks and runs them through a transport.
//
// A Planner turns the configured interfaces into a manifest of FetchTasks.
// Each task has a stable id derived from its interface and parameters and a
// partitioned output path under the raw directory:
//
//	raw/source_domain=<d>/interface=<id>/date=<yyyymmdd|static>/part-<id[:10]>.csv
//
// Two transports execute manifests. ReplayTransport copies bootstrap files
// into place for offline runs. HTTPTransport fetches live endpoints with a
// bounded worker pool per source domain, token-bucket admission, bounded
// retries with exponential backoff and jitter, and a checkpoint store so
// completed tasks are never fetched twice.
package ingest
