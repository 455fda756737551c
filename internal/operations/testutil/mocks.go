package testutil

import (
	"context"
	"sync"
	"time"

	"finset/internal/operations"
)

// MockStage is a configurable step for manager and registry tests
type MockStage struct {
	IDValue           string
	NameValue         string
	DependenciesValue []string
	Inputs            []operations.DataRequirement
	Outputs           []operations.DataOutput

	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	mu           sync.Mutex
	executeCalls int
	executedAt   []time.Time
}

// ID returns the step ID
func (m *MockStage) ID() string {
	return m.IDValue
}

// Name returns the step name
func (m *MockStage) Name() string {
	return m.NameValue
}

// GetDependencies returns the step dependencies
func (m *MockStage) GetDependencies() []string {
	if m.DependenciesValue == nil {
		return []string{}
	}
	return m.DependenciesValue
}

// Execute records the call and runs ExecuteFunc
func (m *MockStage) Execute(ctx context.Context, state *operations.OperationState) error {
	m.mu.Lock()
	m.executeCalls++
	m.executedAt = append(m.executedAt, time.Now())
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

// Validate runs ValidateFunc
func (m *MockStage) Validate(state *operations.OperationState) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(state)
	}
	return nil
}

// RequiredInputs returns Inputs
func (m *MockStage) RequiredInputs() []operations.DataRequirement {
	return m.Inputs
}

// ProducedOutputs returns Outputs
func (m *MockStage) ProducedOutputs() []operations.DataOutput {
	return m.Outputs
}

// ExecuteCalls returns the number of Execute calls
func (m *MockStage) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executeCalls
}

// Recorder collects the order in which steps executed
type Recorder struct {
	mu  sync.Mutex
	ids []string
}

// Record appends id
func (r *Recorder) Record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

// IDs returns the recorded order
func (r *Recorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// MockObserver counts observer callbacks
type MockObserver struct {
	mu       sync.Mutex
	Started  []string
	Finished map[string]error
	RunErr   error
	RunDone  bool
}

// OperationStarted implements operations.StageObserver
func (o *MockObserver) OperationStarted(ctx context.Context, req operations.OperationRequest) context.Context {
	return ctx
}

// OperationFinished implements operations.StageObserver
func (o *MockObserver) OperationFinished(ctx context.Context, operationID string, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.RunDone = true
	o.RunErr = err
}

// StageStarted implements operations.StageObserver
func (o *MockObserver) StageStarted(ctx context.Context, operationID, stepID string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Started = append(o.Started, stepID)
	return ctx
}

// StageFinished implements operations.StageObserver
func (o *MockObserver) StageFinished(ctx context.Context, operationID, stepID string, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Finished == nil {
		o.Finished = make(map[string]error)
	}
	o.Finished[stepID] = err
}
