package domain

// TaskStatus is the lifecycle of a fetch task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// FetchTask is one atomic unit of raw data collection
type FetchTask struct {
	TaskID       string            `json:"task_id"`
	InterfaceID  string            `json:"interface_id"`
	SourceDomain string            `json:"source_domain"`
	Ticker       string            `json:"ticker,omitempty"`
	Scope        string            `json:"scope,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
	ReplayPath   string            `json:"replay_path,omitempty"`
	OutputPath   string            `json:"output_path"`
	Status       TaskStatus        `json:"status"`
}

// FetchResult points at the raw file a task produced
type FetchResult struct {
	Task    FetchTask `json:"task"`
	RawPath string    `json:"raw_file_path"`
}
