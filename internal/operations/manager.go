package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"finset/internal/config"
	"finset/internal/infrastructure"
)

// Manager orchestrates pipeline runs
type Manager struct {
	registry *Registry
	config   *Config
	observer StageObserver
	logger   *slog.Logger

	// sleep waits between retry attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.RWMutex
	operations map[string]*OperationState
}

// NewManager creates a manager; nil arguments get defaults
func NewManager(registry *Registry, cfg *Config, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   registry,
		config:     cfg,
		logger:     logger.With(slog.String("component", "operations")),
		sleep:      sleepContext,
		operations: make(map[string]*OperationState),
	}
}

// RegisterStage registers a step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// SetObserver installs tracing and metrics hooks
func (m *Manager) SetObserver(o StageObserver) {
	m.observer = o
}

// SetConfig updates the execution configuration
func (m *Manager) SetConfig(cfg *Config) {
	if cfg != nil {
		m.config = cfg
	}
}

// GetRegistry returns the registry for accessing registered stages
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs the registered steps for req. With Parameters["step"] set only
// that step runs, against a manifest seeded by the caller.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	return m.ExecuteWithManifest(ctx, req, nil)
}

// ExecuteWithManifest is Execute with a pre-populated manifest, used when a
// single step runs over data produced by an earlier run
func (m *Manager) ExecuteWithManifest(ctx context.Context, req OperationRequest, manifest *PipelineManifest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = infrastructure.NewRunID()
	}
	ctx = infrastructure.WithRunID(infrastructure.EnsureTraceID(ctx), req.ID)

	state := NewOperationState(req.ID)
	state.SetConfig(ContextKeyMode, req.Mode)
	state.SetConfig(ContextKeyStartDate, req.StartDate)
	state.SetConfig(ContextKeyEndDate, req.EndDate)
	state.SetConfig(ContextKeySuffix, req.Suffix)
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	if manifest == nil {
		manifest = NewPipelineManifest(req.ID, req.Mode, req.StartDate, req.EndDate, req.Suffix)
	} else {
		manifest.ID = req.ID
		manifest.Mode = req.Mode
		manifest.StartDate, manifest.EndDate, manifest.Suffix = req.StartDate, req.EndDate, req.Suffix
	}
	state.Manifest = manifest

	m.storeOperation(state)
	defer m.removeOperation(req.ID)

	m.logOperationStart(ctx, req)
	if m.observer != nil {
		ctx = m.observer.OperationStarted(ctx, req)
	}

	steps, err := m.selectSteps(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		return m.finish(ctx, state, err)
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	state.Start()
	err = m.executeSequential(ctx, state, steps)
	if err != nil {
		state.Fail(err)
	} else {
		state.Complete()
	}
	return m.finish(ctx, state, err)
}

func (m *Manager) selectSteps(req OperationRequest) ([]Step, error) {
	if name, ok := req.Parameters[ContextKeyStep].(string); ok && name != "" {
		step, err := m.registry.Get(name)
		if err != nil {
			return nil, NewValidationError(name, err.Error())
		}
		return []Step{step}, nil
	}
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, NewFatalError("failed to get dependency order", err)
	}
	return steps, nil
}

// finish persists the manifest and builds the response
func (m *Manager) finish(ctx context.Context, state *OperationState, runErr error) (*OperationResponse, error) {
	status := state.Status
	if errors.Is(runErr, context.Canceled) || GetErrorType(runErr) == ErrorTypeCancellation {
		state.Cancel()
		status = OperationStatusCancelled
	}
	state.Manifest.SetStatus(status, runErr)

	resp := m.createResponse(state)
	if m.config.ManifestDir != "" {
		path := filepath.Join(m.config.ManifestDir, state.ID, config.RunManifestFileName)
		if err := state.Manifest.SaveToFile(path); err != nil {
			m.logger.ErrorContext(ctx, "manifest_save_failed",
				slog.String("operation_id", state.ID),
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else {
			resp.ManifestPath = path
		}
	}

	if m.observer != nil {
		m.observer.OperationFinished(ctx, state.ID, state.Duration(), runErr)
	}
	m.logOperationComplete(ctx, state.ID, state.Duration(), string(resp.Status))
	return resp, runErr
}

// executeSequential runs steps in dependency order. A failed step skips
// everything that depends on it; without ContinueOnError, or on a fatal
// error, the remaining steps are skipped as well.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	var errs ErrorList
	aborted := ""

	for i, step := range steps {
		stepState := state.GetStage(step.ID())

		if aborted != "" {
			m.skip(ctx, state, step, fmt.Sprintf("run aborted after %s failed", aborted))
			continue
		}
		if err := ctx.Err(); err != nil {
			m.logger.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			cancelled := NewCancellationError(step.ID())
			cancelled.Cause = err
			for _, rest := range steps[i:] {
				m.skip(ctx, state, rest, "run cancelled")
			}
			return cancelled
		}
		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}
		if dep, ok := m.unmetDependency(state, step); !ok {
			m.skip(ctx, state, step, fmt.Sprintf("dependency %s not completed", dep))
			continue
		}

		m.logger.InfoContext(ctx, "executing_stage",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		err := m.executeStage(ctx, state, step)
		if err == nil {
			continue
		}

		opErr := WrapError(err, step.ID(), "")
		errs.Add(opErr)
		m.skipDependentStages(ctx, state, steps, step.ID())
		if IsFatal(opErr) || !m.config.ContinueOnError {
			aborted = step.ID()
			continue
		}
		m.logger.WarnContext(ctx, "stage_failed_continuing",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.String("error", err.Error()))
	}

	switch len(errs.Errors) {
	case 0:
		m.logger.InfoContext(ctx, "all_stages_completed", slog.String("operation_id", state.ID))
		return nil
	case 1:
		return errs.Errors[0]
	default:
		return &errs
	}
}

// executeStage runs one step with its timeout and retry policy
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) (err error) {
	stepState := state.GetStage(step.ID())
	manifest := state.Manifest
	m.logStageStart(ctx, state.ID, step.ID())

	if err := CanRun(step, manifest); err != nil {
		depErr := NewDependencyError(step.ID(), "", err.Error())
		stepState.Fail(depErr)
		manifest.RecordStageStart(step.ID(), step.Name())
		manifest.RecordStageFailure(step.ID(), depErr)
		m.logStageError(ctx, state.ID, step.ID(), depErr)
		return depErr
	}
	if err := step.Validate(state); err != nil {
		valErr := NewValidationError(step.ID(), err.Error())
		valErr.Cause = err
		stepState.Fail(valErr)
		manifest.RecordStageStart(step.ID(), step.Name())
		manifest.RecordStageFailure(step.ID(), valErr)
		m.logStageError(ctx, state.ID, step.ID(), valErr)
		return valErr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if m.observer != nil {
		stageCtx = m.observer.StageStarted(stageCtx, state.ID, step.ID())
	}
	started := time.Now()
	manifest.RecordStageStart(step.ID(), step.Name())
	defer func() {
		if m.observer != nil {
			m.observer.StageFinished(stageCtx, state.ID, step.ID(), time.Since(started), err)
		}
	}()

	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		stepState.Start()
		execErr := step.Execute(stageCtx, state)
		if execErr == nil {
			stepState.Complete()
			manifest.RecordStageCompletion(step.ID(), outputTypes(step), stepState.clone().Metadata)
			m.logStageComplete(ctx, state.ID, step.ID(), time.Since(started))
			return nil
		}

		if stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			execErr = NewTimeoutError(step.ID(), timeout.String())
		}
		wrapped := WrapError(execErr, step.ID(), "step execution failed")

		if !IsRetryable(wrapped) || attempt >= retry.MaxAttempts {
			stepState.Fail(wrapped)
			manifest.RecordStageFailure(step.ID(), wrapped)
			m.logStageError(ctx, state.ID, step.ID(), wrapped)
			return wrapped
		}

		delay := retry.Delay(attempt)
		m.logger.WarnContext(ctx, "stage_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", execErr.Error()))

		if err := m.sleep(stageCtx, delay); err != nil {
			timeoutErr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(timeoutErr)
			manifest.RecordStageFailure(step.ID(), timeoutErr)
			return timeoutErr
		}
	}
}

func (m *Manager) unmetDependency(state *OperationState, step Step) (string, bool) {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			// Not part of this run; single-step runs rely on the manifest instead
			continue
		}
		if depState.GetStatus() != StepStatusCompleted {
			return dep, false
		}
	}
	return "", true
}

func (m *Manager) skip(ctx context.Context, state *OperationState, step Step, reason string) {
	stepState := state.GetStage(step.ID())
	if stepState == nil || stepState.GetStatus() != StepStatusPending {
		return
	}
	stepState.Skip(reason)
	state.Manifest.RecordStageSkipped(step.ID(), step.Name(), reason)
	m.logger.InfoContext(ctx, "stage_skipped",
		slog.String("operation_id", state.ID),
		slog.String("step", step.ID()),
		slog.String("reason", reason))
}

// skipDependentStages marks every transitive dependent of the failed step as skipped
func (m *Manager) skipDependentStages(ctx context.Context, state *OperationState, steps []Step, failedStageID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedStageID {
				continue
			}
			stepState := state.GetStage(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				m.skip(ctx, state, step, fmt.Sprintf("dependency %s failed", failedStageID))
				m.skipDependentStages(ctx, state, steps, step.ID())
			}
			break
		}
	}
}

func outputTypes(step Step) []string {
	outs := step.ProducedOutputs()
	types := make([]string, 0, len(outs))
	for _, o := range outs {
		types = append(types, o.Type)
	}
	return types
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// createResponse creates an operation response from state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	snapshot := state.Clone()
	resp := &OperationResponse{
		ID:       snapshot.ID,
		Status:   snapshot.Status,
		Duration: snapshot.Duration(),
		Steps:    snapshot.Steps,
	}
	if snapshot.Error != nil {
		resp.Error = snapshot.Error.Error()
	}
	return resp
}

// GetOperation retrieves the state of a running operation
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.operations[id]
	if !exists {
		return nil, fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	return state.Clone(), nil
}

// ListOperations returns all active operations
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make([]*OperationState, 0, len(m.operations))
	for _, state := range m.operations {
		operations = append(operations, state.Clone())
	}
	return operations
}

func (m *Manager) storeOperation(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}
