// Package operations runs the dataset pipeline as a sequence of steps.
//
// The steps are fetch, normalize, assemble, label, export and audit. Each is
// registered in a Registry with its dependencies; the Manager executes them
// in topological order (registration order breaks ties), one at a time.
//
// Core Components:
//
// Manager: executes a run with a per-step timeout and the RetryConfig. Only
// errors marked retryable are retried. A failing step skips its dependents,
// and a fatal error (missing calendar or universe) ends the run.
//
// Step: one unit of work. Steps declare the manifest data they need
// (RequiredInputs) and the data they produce (ProducedOutputs).
//
// PipelineManifest: records available data (raw, silver, gold_features,
// gold_labels, exports, stats) and every stage execution. It is saved as
// runs/<run_id>/manifest.json.
//
// Example usage:
//
//	manager := operations.NewManager(nil, operations.NewConfigBuilder().
//		WithManifestDir(paths.RunsDir).
//		Build(), logger)
//	manager.RegisterStage(operations.NewFetchStage(deps))
//	manager.RegisterStage(operations.NewNormalizeStage(deps))
//	resp, err := manager.Execute(ctx, operations.OperationRequest{
//		Mode:      operations.ModeReplay,
//		StartDate: "2024-12-30",
//		EndDate:   "2025-08-15",
//		Suffix:    "smoke",
//	})
package operations
