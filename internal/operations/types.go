package operations

import (
	"time"

	"finset/internal/config"
)

// Step IDs
const (
	StageIDFetch     = "fetch"
	StageIDNormalize = "normalize"
	StageIDAssemble  = "assemble"
	StageIDLabel     = "label"
	StageIDExport    = "export"
	StageIDAudit     = "audit"
)

// Step names
const (
	StageNameFetch     = "Fetch"
	StageNameNormalize = "Normalize"
	StageNameAssemble  = "Assemble"
	StageNameLabel     = "Label"
	StageNameExport    = "Export"
	StageNameAudit     = "Audit"
)

// Keys of OperationState.Config
const (
	ContextKeyMode      = "mode"
	ContextKeyStartDate = "start_date"
	ContextKeyEndDate   = "end_date"
	ContextKeySuffix    = "suffix"
	ContextKeyStep      = "step"
)

// Keys of OperationState.Context shared between steps
const (
	ContextKeyFetchResults = "fetch_results"
	ContextKeySilver       = "silver"
	ContextKeyCalendar     = "calendar"
)

// Run modes
const (
	ModeReplay = "replay"
	ModeOnline = "online"
	ModeFull   = "full"
)

// Default timeouts
const (
	DefaultStageTimeout = config.DefaultStageTimeout
	DefaultFetchTimeout = config.FetchStageTimeout
)

// ExecutionMode defines how steps are executed
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
)

// RetryConfig defines step-level retry behaviour
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before the attempt following attempt (1-based)
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
	}
	if time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// OperationRequest represents a request to execute a pipeline run
type OperationRequest struct {
	ID         string                 `json:"id"`
	Mode       string                 `json:"mode"`
	StartDate  string                 `json:"start_date,omitempty"`
	EndDate    string                 `json:"end_date,omitempty"`
	Suffix     string                 `json:"suffix,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse represents the result of a pipeline run
type OperationResponse struct {
	ID           string                 `json:"id"`
	Status       OperationStatusValue   `json:"status"`
	Duration     time.Duration          `json:"duration"`
	Steps        map[string]*StepState  `json:"steps"`
	ManifestPath string                 `json:"manifest_path,omitempty"`
	Error        string                 `json:"error,omitempty"`
}
