package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrRunNotFound is returned when no persisted report exists for a run id.
var ErrRunNotFound = errors.New("engine: run not found")

// ReportStore persists workflow run reports.
type ReportStore interface {
	Save(WorkflowReport) error
	Load(runID string) (WorkflowReport, error)
}

// RunStore writes one JSON file per run under the project's runs directory.
type RunStore struct {
	dir string
}

// NewRunStore creates a store rooted at the given runs directory.
func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

// Save writes the report to <dir>/<run_id>.json.
func (s *RunStore) Save(report WorkflowReport) error {
	if strings.TrimSpace(report.RunID) == "" {
		return fmt.Errorf("engine: report has no run id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(report.RunID), append(encoded, '\n'), 0o644)
}

// Load reads the persisted report for a run id.
func (s *RunStore) Load(runID string) (WorkflowReport, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return WorkflowReport{}, fmt.Errorf("engine: run %s: %w", runID, ErrRunNotFound)
		}
		return WorkflowReport{}, err
	}
	var report WorkflowReport
	if err := json.Unmarshal(data, &report); err != nil {
		return WorkflowReport{}, err
	}
	return report, nil
}

// List returns the run ids with persisted reports, sorted lexically.
func (s *RunStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RunStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}
