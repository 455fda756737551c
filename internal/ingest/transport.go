package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"finset/internal/files"
	"finset/pkg/contracts/domain"
)

// Transport executes fetch tasks, producing one raw CSV per successful task
type Transport interface {
	Fetch(ctx context.Context, tasks []domain.FetchTask) ([]domain.FetchResult, error)
}

// ReplayTransport "fetches" by copying bootstrap files to task output paths
type ReplayTransport struct {
	logger *slog.Logger
}

// NewReplayTransport creates a replay transport
func NewReplayTransport(logger *slog.Logger) *ReplayTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayTransport{logger: logger.With(slog.String("component", "replay_transport"))}
}

// Fetch copies every task's replay file. Missing or unreadable files are
// logged and skipped; zero successes out of a non-empty manifest is an error.
func (t *ReplayTransport) Fetch(ctx context.Context, tasks []domain.FetchTask) ([]domain.FetchResult, error) {
	t.logger.InfoContext(ctx, "replay_started", slog.Int("tasks", len(tasks)))

	var results []domain.FetchResult
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		table, err := files.ReadTable(task.ReplayPath, files.ReadOptions{})
		if err != nil {
			t.logger.ErrorContext(ctx, "replay_file_failed",
				slog.String("interface", task.InterfaceID),
				slog.String("ticker", task.Ticker),
				slog.String("replay_path", task.ReplayPath),
				slog.String("error", err.Error()))
			continue
		}
		if err := files.WriteTableAtomic(task.OutputPath, table); err != nil {
			t.logger.ErrorContext(ctx, "replay_write_failed",
				slog.String("interface", task.InterfaceID),
				slog.String("output_path", task.OutputPath),
				slog.String("error", err.Error()))
			continue
		}

		task.Status = domain.TaskStatusCompleted
		results = append(results, domain.FetchResult{Task: task, RawPath: task.OutputPath})
		t.logger.DebugContext(ctx, "replay_task_completed",
			slog.String("interface", task.InterfaceID),
			slog.String("output_path", task.OutputPath),
			slog.Int("rows", table.Len()))
	}

	t.logger.InfoContext(ctx, "replay_completed",
		slog.Int("succeeded", len(results)),
		slog.Int("total", len(tasks)))

	if len(results) == 0 && len(tasks) > 0 {
		return nil, fmt.Errorf("failed to replay any of %d tasks", len(tasks))
	}
	return results, nil
}
