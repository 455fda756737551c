package testutil

import (
	"context"
	"errors"
	"time"

	"finset/internal/operations"
)

// CreateTestConfig returns a config with short retry delays
func CreateTestConfig() *operations.Config {
	return operations.NewConfigBuilder().
		WithRetryConfig(operations.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		}).
		Build()
}

// CreateSuccessfulStage creates a step that always succeeds and records itself
func CreateSuccessfulStage(rec *Recorder, id string, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			if rec != nil {
				rec.Record(id)
			}
			if s := state.GetStage(id); s != nil {
				s.UpdateProgress(50, "working")
			}
			return nil
		},
	}
}

// CreateFailingStage creates a step that always fails with err
func CreateFailingStage(id string, err error, deps ...string) *MockStage {
	if err == nil {
		err = errors.New("step failed")
	}
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			return err
		},
	}
}

// CreateRetryableStage creates a step that fails failCount times with a
// retryable error, then succeeds
func CreateRetryableStage(id string, failCount int, deps ...string) *MockStage {
	attempts := 0
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			attempts++
			if attempts <= failCount {
				return operations.NewExecutionError(id, errors.New("temporary failure"), true)
			}
			return nil
		},
	}
}

// CreateSlowStage creates a step that blocks for d or until ctx ends
func CreateSlowStage(id string, d time.Duration, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}
