// Package shared holds helpers used by more than one package's tests.
//
// testutil captures slog records so tests can assert on the structured
// events a stage emits, for example that a failed source join is logged
// with its interface id:
//
//	logger, logs := testutil.NewTestLogger(t)
//	...
//	testutil.AssertLogAttr(t, logs, "source_join_failed", "interface_id", "nokey")
package shared
