package operations_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"finset/internal/calendar"
	"finset/internal/operations"
	"finset/internal/universe"
)

var errBadRow = errors.New("bad row")

func TestWrapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantType  operations.ErrorType
		retryable bool
	}{
		{"missing calendar", fmt.Errorf("open: %w", calendar.ErrCalendarUnavailable), calendar.ErrCalendarUnavailable, operations.ErrorTypeFatal, false},
		{"missing universe", universe.ErrUniverseUnavailable, universe.ErrUniverseUnavailable, operations.ErrorTypeFatal, false},
		{"cancelled", fmt.Errorf("fetch: %w", context.Canceled), context.Canceled, operations.ErrorTypeCancellation, false},
		{"plain", errBadRow, errBadRow, operations.ErrorTypeExecution, false},
		{"already classified", operations.NewExecutionError("", errBadRow, true), errBadRow, operations.ErrorTypeExecution, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := operations.WrapError(tt.err, "assemble", "step execution failed")
			assert.Equal(t, tt.wantType, wrapped.Type)
			assert.Equal(t, "assemble", wrapped.Step)
			assert.Equal(t, tt.retryable, operations.IsRetryable(wrapped))
			assert.ErrorIs(t, wrapped, tt.target)
		})
	}

	assert.Nil(t, operations.WrapError(nil, "x", ""))
}

func TestOperationErrorMessage(t *testing.T) {
	err := operations.NewExecutionError("label", errors.New("no price column"), false)
	assert.Equal(t, "[execution] label: step execution failed: no price column", err.Error())

	fatal := operations.NewFatalError("no dependency order", nil)
	assert.Equal(t, "[fatal] no dependency order", fatal.Error())
	assert.True(t, operations.IsFatal(fatal))

	assert.Equal(t, operations.ErrorTypeExecution, operations.GetErrorType(errors.New("x")))
	assert.Equal(t, operations.ErrorType(""), operations.GetErrorType(nil))
}

func TestErrorList(t *testing.T) {
	var list operations.ErrorList
	assert.False(t, list.HasErrors())
	assert.Equal(t, "no errors", list.Error())

	list.Add(nil)
	list.Add(operations.NewValidationError("fetch", "no transport"))
	list.Add(operations.NewTimeoutError("label", "30m0s"))

	assert.True(t, list.HasErrors())
	assert.Len(t, list.GetByStep("label"), 1)
	assert.Contains(t, list.Error(), "2 errors")
}

func TestRetryDelay(t *testing.T) {
	cfg := operations.NewRetryConfig()
	assert.Equal(t, cfg.InitialDelay, cfg.Delay(1))
	assert.Equal(t, 2*cfg.InitialDelay, cfg.Delay(2))
	assert.Equal(t, cfg.MaxDelay, cfg.Delay(20))
}
