// Package report writes a machine-readable summary of each run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report is the run summary written after a run finishes, successful
// or not.
type Report struct {
	RunID     string    `json:"run_id"`
	Procedure string    `json:"procedure"`
	Dataset   string    `json:"dataset"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`

	RowCount   int64  `json:"row_count"`
	CellCount  int64  `json:"cell_count"`
	LineErrors int64  `json:"line_errors,omitempty"`
	ByteSize   int64  `json:"byte_size"`
	Checksum   string `json:"checksum,omitempty"`
	URI        string `json:"uri,omitempty"`
}

// Manager persists run reports.
type Manager interface {
	Write(report *Report) error
}

// FileManager writes the report as indented JSON with an atomic
// replace.
type FileManager struct {
	path string
}

func NewFileManager(path string) *FileManager {
	return &FileManager{path: path}
}

func (m *FileManager) Write(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing report: %w", err)
	}
	return nil
}

// Noop discards reports.
type Noop struct{}

func (Noop) Write(report *Report) error { return nil }
