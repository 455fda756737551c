package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finset/internal/checkpoint"
	"finset/internal/config"
	"finset/internal/files"
	"finset/internal/infrastructure"
	"finset/pkg/contracts/domain"
)

var errEmptyResponse = errors.New("empty response")

// HTTPOptions wires an HTTPTransport
type HTTPOptions struct {
	Registry   *Registry
	RateLimits []config.DomainRateLimit
	Fetch      config.FetchConfig
	Proxy      *Proxy
	Store      checkpoint.Store
	Metrics    *infrastructure.Metrics
	Logger     *slog.Logger
}

// HTTPTransport fetches live endpoints
type HTTPTransport struct {
	registry *Registry
	limiters *DomainLimiters
	fetchCfg config.FetchConfig
	proxy    *Proxy
	store    checkpoint.Store
	metrics  *infrastructure.Metrics
	logger   *slog.Logger

	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHTTPTransport validates opts and creates the transport
func NewHTTPTransport(opts HTTPOptions) (*HTTPTransport, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("http transport requires a registry")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("http transport requires a checkpoint store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		registry: opts.Registry,
		limiters: NewDomainLimiters(opts.RateLimits),
		fetchCfg: opts.Fetch,
		proxy:    opts.Proxy,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   logger.With(slog.String("component", "http_transport")),
		jitter:   rand.Float64,
		sleep:    sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pendingTask struct {
	index   int
	task    domain.FetchTask
	handler Handler
}

// Fetch runs every task not yet checkpointed. Handlers are resolved before
// any request is sent, so an unknown interface fails the whole manifest.
// Individual task failures are logged and omitted from the results.
func (t *HTTPTransport) Fetch(ctx context.Context, tasks []domain.FetchTask) ([]domain.FetchResult, error) {
	done, err := t.store.Completed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	byDomain := make(map[string][]pendingTask)
	var domains []string
	for i, task := range tasks {
		if _, ok := done[task.TaskID]; ok {
			continue
		}
		h, err := t.registry.Lookup(task.InterfaceID)
		if err != nil {
			return nil, err
		}
		d := t.limiters.Limit(task.SourceDomain).Domain
		if _, seen := byDomain[d]; !seen {
			domains = append(domains, d)
		}
		byDomain[d] = append(byDomain[d], pendingTask{index: i, task: task, handler: h})
	}

	pending := 0
	for _, p := range byDomain {
		pending += len(p)
	}
	t.logger.InfoContext(ctx, "fetch_started",
		slog.Int("pending", pending),
		slog.Int("total", len(tasks)),
		slog.Int("checkpointed", len(tasks)-pending))
	if pending == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		indexed = make(map[int]domain.FetchResult)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range domains {
		work := byDomain[d]
		limit := t.limiters.Limit(d)
		g.Go(func() error {
			var pool errgroup.Group
			pool.SetLimit(max(limit.Concurrency, 1))
			policy := NewRetryPolicy(t.fetchCfg, limit.Retry)
			for _, p := range work {
				pool.Go(func() error {
					res, err := t.fetchTask(gctx, p, policy)
					if err != nil {
						t.record(p.task.InterfaceID, "failed")
						t.logger.ErrorContext(gctx, "fetch_task_failed",
							slog.String("task_id", shortID(p.task.TaskID)),
							slog.String("interface", p.task.InterfaceID),
							slog.String("error", err.Error()))
						return nil
					}
					t.record(p.task.InterfaceID, "success")
					mu.Lock()
					indexed[p.index] = res
					mu.Unlock()
					return nil
				})
			}
			return pool.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]domain.FetchResult, 0, len(indexed))
	for i := range tasks {
		if r, ok := indexed[i]; ok {
			results = append(results, r)
		}
	}
	t.logger.InfoContext(ctx, "fetch_completed",
		slog.Int("succeeded", len(results)),
		slog.Int("pending", pending))
	return results, ctx.Err()
}

func (t *HTTPTransport) fetchTask(ctx context.Context, p pendingTask, policy RetryPolicy) (domain.FetchResult, error) {
	task := p.task
	for attempt := 0; ; attempt++ {
		if err := t.limiters.Wait(ctx, task.SourceDomain); err != nil {
			return domain.FetchResult{}, err
		}

		table, err := t.fetchOnce(ctx, p.handler, task)
		if err == nil && table.Len() == 0 {
			err = errEmptyResponse
		}
		if err == nil {
			return t.save(ctx, task, table)
		}
		if ctx.Err() != nil || !policy.ShouldRetry(attempt) {
			return domain.FetchResult{}, fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}

		delay := policy.Delay(attempt, t.jitter())
		if t.metrics != nil {
			t.metrics.FetchRetries.WithLabelValues(task.InterfaceID).Inc()
		}
		t.logger.WarnContext(ctx, "fetch_attempt_failed",
			slog.String("task_id", shortID(task.TaskID)),
			slog.String("interface", task.InterfaceID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", policy.MaxAttempts),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))
		if err := t.sleep(ctx, delay); err != nil {
			return domain.FetchResult{}, err
		}
	}
}

func (t *HTTPTransport) fetchOnce(ctx context.Context, h Handler, task domain.FetchTask) (domain.Table, error) {
	endpoint, err := h.Request(task)
	if err != nil {
		return domain.Table{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Table{}, err
	}
	req.Header.Set("User-Agent", config.AppName)

	resp, err := t.proxy.Client(t.fetchCfg.RequestTimeout).Do(req)
	if err != nil {
		return domain.Table{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Table{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	table, err := h.Decode(resp.Body)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to decode %s response: %w", h.InterfaceID, err)
	}
	return table, nil
}

// save writes the raw partition, then records the checkpoint
func (t *HTTPTransport) save(ctx context.Context, task domain.FetchTask, table domain.Table) (domain.FetchResult, error) {
	if err := files.WriteTableAtomic(task.OutputPath, table); err != nil {
		return domain.FetchResult{}, err
	}
	if err := t.store.MarkCompleted(ctx, checkpoint.Entry{
		TaskID:      task.TaskID,
		InterfaceID: task.InterfaceID,
		OutputPath:  task.OutputPath,
	}); err != nil {
		return domain.FetchResult{}, err
	}

	task.Status = domain.TaskStatusCompleted
	t.logger.InfoContext(ctx, "fetch_task_saved",
		slog.String("task_id", shortID(task.TaskID)),
		slog.String("interface", task.InterfaceID),
		slog.String("output_path", task.OutputPath),
		slog.Int("rows", table.Len()))
	return domain.FetchResult{Task: task, RawPath: task.OutputPath}, nil
}

func (t *HTTPTransport) record(iface, status string) {
	if t.metrics != nil {
		t.metrics.TasksFetched.WithLabelValues(iface, status).Inc()
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
