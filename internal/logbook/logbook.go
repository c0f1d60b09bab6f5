package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook persists run progress to a simple append-only text file. It records
// phase starts, per-module outcomes, and refinement decisions so a run can be
// reconstructed after the process exits.
type Logbook struct {
	path string
	mu   sync.Mutex
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		time.Now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// ModuleOutcome records the result of one module execution within a phase.
func (l *Logbook) ModuleOutcome(phaseID, moduleID string, succeeded bool, detail string) {
	level := LevelInfo
	status := "completed"
	if !succeeded {
		level = LevelWarn
		status = "failed"
	}
	message := fmt.Sprintf("phase=%s module=%s status=%s", phaseID, moduleID, status)
	if detail != "" {
		message += " detail=" + detail
	}
	l.Append(level, message)
}

// Refinement records one refinement-loop decision for a root.
func (l *Logbook) Refinement(rootID string, iteration int, accepted bool, note string) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	message := fmt.Sprintf("refine root=%s iteration=%d verdict=%s", rootID, iteration, verdict)
	if note != "" {
		message += " note=" + note
	}
	l.Append(LevelInfo, message)
}

// Entries reads back every line currently in the logbook. Missing files yield
// an empty slice so callers can inspect a run that never started.
func (l *Logbook) Entries() ([]string, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
