package operations

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DataRequirement specifies data needed for a step to run
type DataRequirement struct {
	Type     string `json:"type"`      // Manifest data type (e.g., "silver")
	MinCount int    `json:"min_count"` // Minimum number of files needed
	Optional bool   `json:"optional"`
}

// DataOutput specifies data produced by a step
type DataOutput struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	Pattern  string `json:"pattern"` // e.g. "*.csv"
}

// Step represents a single step of a pipeline run
type Step interface {
	// ID returns the unique identifier for this step
	ID() string

	// Name returns the human-readable name for this step
	Name() string

	// Execute runs the step with the given context and operation state
	Execute(ctx context.Context, state *OperationState) error

	// Validate checks if the step can be executed with the current state
	Validate(state *OperationState) error

	// GetDependencies returns the IDs of steps that must complete before this step
	GetDependencies() []string

	// RequiredInputs returns the data requirements for this step to run
	RequiredInputs() []DataRequirement

	// ProducedOutputs returns the data outputs this step produces
	ProducedOutputs() []DataOutput
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState represents the runtime state of a step
type StepState struct {
	mu           sync.RWMutex
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Status       StepStatus             `json:"status"`
	StartTime    *time.Time             `json:"start_time,omitempty"`
	EndTime      *time.Time             `json:"end_time,omitempty"`
	Attempts     int                    `json:"attempts"`
	Progress     float64                `json:"progress"`
	Message      string                 `json:"message"`
	Error        error                  `json:"-"`
	ErrorMessage string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState creates a new step state with default values
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step as active. The first start time is kept across retries.
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartTime == nil {
		now := time.Now()
		s.StartTime = &now
	}
	s.Status = StepStatusActive
	s.Attempts++
	s.Progress = 0
}

// Complete marks the step as completed and sets the end time
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusCompleted
	s.Progress = 100
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusFailed
	s.Error = err
	if err != nil {
		s.ErrorMessage = err.Error()
	}
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = StepStatusSkipped
	s.Message = reason
}

// UpdateProgress updates the step progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Progress = progress
	s.Message = message
}

// SetMetadata records a step result value
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Metadata[key] = value
}

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the duration of the step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// BaseStage provides common functionality for step implementations
type BaseStage struct {
	id           string
	name         string
	dependencies []string
	requires     []DataRequirement
	produces     []DataOutput
}

// NewBaseStage creates a new base step
func NewBaseStage(id, name string, dependencies []string) BaseStage {
	if dependencies == nil {
		dependencies = []string{}
	}
	return BaseStage{
		id:           id,
		name:         name,
		dependencies: dependencies,
	}
}

// ID returns the step ID
func (b *BaseStage) ID() string {
	if b == nil {
		return ""
	}
	return b.id
}

// Name returns the step name
func (b *BaseStage) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// GetDependencies returns the step dependencies
func (b *BaseStage) GetDependencies() []string {
	if b == nil {
		return nil
	}
	return b.dependencies
}

// Validate provides a default validation that always passes
func (b *BaseStage) Validate(state *OperationState) error {
	if b == nil {
		return fmt.Errorf("BaseStage is nil")
	}
	return nil
}

// Requires declares the manifest data the step needs
func (b *BaseStage) Requires(reqs ...DataRequirement) {
	b.requires = append(b.requires, reqs...)
}

// Produces declares the manifest data the step writes
func (b *BaseStage) Produces(outs ...DataOutput) {
	b.produces = append(b.produces, outs...)
}

// RequiredInputs returns the declared requirements
func (b *BaseStage) RequiredInputs() []DataRequirement {
	if b == nil {
		return nil
	}
	return b.requires
}

// ProducedOutputs returns the declared outputs
func (b *BaseStage) ProducedOutputs() []DataOutput {
	if b == nil {
		return nil
	}
	return b.produces
}

// CanRun checks the step's required inputs against the manifest. Optional
// requirements never block.
func CanRun(step Step, manifest *PipelineManifest) error {
	if manifest == nil {
		return nil
	}
	for _, req := range step.RequiredInputs() {
		if req.Optional {
			continue
		}
		data, exists := manifest.GetData(req.Type)
		if !exists {
			return fmt.Errorf("required data %s not available", req.Type)
		}
		if req.MinCount > 0 && data.FileCount < req.MinCount {
			return fmt.Errorf("required data %s has %d files, need %d", req.Type, data.FileCount, req.MinCount)
		}
	}
	return nil
}
