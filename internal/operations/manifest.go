package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"finset/internal/files"
)

// Data types tracked by the manifest
const (
	DataTypeRaw          = "raw"
	DataTypeSilver       = "silver"
	DataTypeGoldFeatures = "gold_features"
	DataTypeGoldLabels   = "gold_labels"
	DataTypeExports      = "exports"
	DataTypeStats        = "stats"
)

// Stage execution statuses
const (
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageSkipped   = "skipped"
)

// PipelineManifest tracks the data a run has produced and how each stage went.
// It is persisted as runs/<run_id>/manifest.json.
type PipelineManifest struct {
	mu sync.RWMutex

	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`

	Mode      string `json:"mode"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Suffix    string `json:"suffix,omitempty"`

	AvailableData map[string]*DataInfo `json:"available_data"`
	Stages        []StageExecution     `json:"stages"`

	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// DataInfo describes one kind of produced data
type DataInfo struct {
	Type      string                 `json:"type"`
	Location  string                 `json:"location"`
	FileCount int                    `json:"file_count"`
	Pattern   string                 `json:"pattern,omitempty"`
	TotalSize int64                  `json:"total_size"`
	Files     []string               `json:"files"`
	CreatedAt time.Time              `json:"created_at"`
	CreatedBy string                 `json:"created_by,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StageExecution tracks the execution of a single stage
type StageExecution struct {
	StageID    string                 `json:"stage_id"`
	StageName  string                 `json:"stage_name"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Duration   string                 `json:"duration"`
	Status     string                 `json:"status"`
	OutputData []string               `json:"output_data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewPipelineManifest creates a manifest for run id
func NewPipelineManifest(id, mode, startDate, endDate, suffix string) *PipelineManifest {
	now := time.Now().UTC()
	return &PipelineManifest{
		ID:            id,
		StartTime:     now,
		Mode:          mode,
		StartDate:     startDate,
		EndDate:       endDate,
		Suffix:        suffix,
		AvailableData: make(map[string]*DataInfo),
		Stages:        []StageExecution{},
		Status:        string(OperationStatusPending),
		LastUpdated:   now,
	}
}

// HasData checks if a specific type of data is available
func (m *PipelineManifest) HasData(dataType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.AvailableData[dataType]
	return exists
}

// GetData returns information about available data
func (m *PipelineManifest) GetData(dataType string) (*DataInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.AvailableData[dataType]
	return data, exists
}

// AddData records newly available data
func (m *PipelineManifest) AddData(dataType string, info *DataInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info.Type = dataType
	if info.FileCount == 0 {
		info.FileCount = len(info.Files)
	}
	info.CreatedAt = time.Now().UTC()
	m.AvailableData[dataType] = info
	m.LastUpdated = info.CreatedAt
}

// RemoveData forgets a data type
func (m *PipelineManifest) RemoveData(dataType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.AvailableData, dataType)
}

// AddFiles records explicit file paths as dataType
func (m *PipelineManifest) AddFiles(dataType, createdBy string, paths ...string) {
	info := &DataInfo{CreatedBy: createdBy, Files: make([]string, 0, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info.Location == "" {
			info.Location = filepath.Dir(p)
		}
		if st, err := os.Stat(p); err == nil {
			info.TotalSize += st.Size()
		}
		info.Files = append(info.Files, p)
	}
	info.FileCount = len(info.Files)
	m.AddData(dataType, info)
}

// ScanDataDirectory walks location for files with extension ext and records them
func (m *PipelineManifest) ScanDataDirectory(dataType, location, ext, createdBy string) error {
	found, err := files.NewDiscovery(location).FindByExtension(ext)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", location, err)
	}

	info := &DataInfo{
		Location:  location,
		Pattern:   "*" + ext,
		CreatedBy: createdBy,
		Files:     make([]string, 0, len(found)),
	}
	for _, f := range found {
		rel, err := filepath.Rel(location, f.Path)
		if err != nil {
			rel = f.Name
		}
		info.Files = append(info.Files, filepath.ToSlash(rel))
		info.TotalSize += f.Size
	}
	info.FileCount = len(info.Files)
	m.AddData(dataType, info)
	return nil
}

// RecordStageStart records the start of a stage execution
func (m *PipelineManifest) RecordStageStart(stageID, stageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.Status = string(OperationStatusRunning)
	m.LastUpdated = now
	if i := m.stageIndex(stageID); i >= 0 {
		m.Stages[i].StartTime = now
		m.Stages[i].Status = StageRunning
		m.Stages[i].Error = ""
		return
	}
	m.Stages = append(m.Stages, StageExecution{
		StageID:   stageID,
		StageName: stageName,
		StartTime: now,
		Status:    StageRunning,
	})
}

// RecordStageCompletion records the completion of a stage
func (m *PipelineManifest) RecordStageCompletion(stageID string, outputData []string, metadata map[string]interface{}) {
	m.finishStage(stageID, StageCompleted, "", func(s *StageExecution) {
		s.OutputData = outputData
		s.Metadata = metadata
	})
}

// RecordStageFailure records a stage failure and marks the run failed
func (m *PipelineManifest) RecordStageFailure(stageID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.finishStage(stageID, StageFailed, msg, nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = string(OperationStatusFailed)
	m.Error = fmt.Sprintf("stage %s failed: %s", stageID, msg)
}

// RecordStageSkipped records a stage that never ran
func (m *PipelineManifest) RecordStageSkipped(stageID, stageName, reason string) {
	m.mu.Lock()
	if m.stageIndex(stageID) < 0 {
		m.Stages = append(m.Stages, StageExecution{StageID: stageID, StageName: stageName})
	}
	m.mu.Unlock()
	m.finishStage(stageID, StageSkipped, reason, nil)
}

func (m *PipelineManifest) finishStage(stageID, status, msg string, update func(*StageExecution)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if i := m.stageIndex(stageID); i >= 0 {
		s := &m.Stages[i]
		s.EndTime = now
		if !s.StartTime.IsZero() {
			s.Duration = now.Sub(s.StartTime).String()
		}
		s.Status = status
		s.Error = msg
		if update != nil {
			update(s)
		}
	}
	m.LastUpdated = now
}

func (m *PipelineManifest) stageIndex(stageID string) int {
	for i := range m.Stages {
		if m.Stages[i].StageID == stageID {
			return i
		}
	}
	return -1
}

// IsStageCompleted checks if a stage has been completed
func (m *PipelineManifest) IsStageCompleted(stageID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.stageIndex(stageID)
	return i >= 0 && m.Stages[i].Status == StageCompleted
}

// SetStatus sets the overall run status
func (m *PipelineManifest) SetStatus(status OperationStatusValue, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = string(status)
	if err != nil {
		m.Error = err.Error()
	}
	m.LastUpdated = time.Now().UTC()
}

// GetProgress returns the share of recorded stages that completed, in percent
func (m *PipelineManifest) GetProgress(totalStages int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if totalStages <= 0 {
		return 0
	}
	completed := 0
	for _, s := range m.Stages {
		if s.Status == StageCompleted {
			completed++
		}
	}
	return completed * 100 / totalStages
}

// DataTypes returns the recorded data types in sorted order
func (m *PipelineManifest) DataTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.AvailableData))
	for k := range m.AvailableData {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SaveToFile writes the manifest as indented JSON
func (m *PipelineManifest) SaveToFile(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := files.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// LoadManifestFromFile loads a manifest written by SaveToFile
func LoadManifestFromFile(path string) (*PipelineManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest PipelineManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if manifest.AvailableData == nil {
		manifest.AvailableData = make(map[string]*DataInfo)
	}
	return &manifest, nil
}

// ListManifests loads every runs/<id>/manifest.json under runsDir, newest first.
// Unreadable manifests are skipped.
func ListManifests(runsDir, fileName string) ([]*PipelineManifest, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*PipelineManifest{}, nil
		}
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := make([]*PipelineManifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := LoadManifestFromFile(filepath.Join(runsDir, e.Name(), fileName))
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}
