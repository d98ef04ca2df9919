package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/recall/pkg/models"
)

// WriteReport writes the comparison report as indented JSON.
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// RunLogWriter appends runs as JSONL, one file per day
// (runs-YYYYMMDD.jsonl) under its directory.
type RunLogWriter struct {
	dir string
	mu  sync.Mutex
}

// NewRunLogWriter creates the log directory when needed.
func NewRunLogWriter(dir string) (*RunLogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run-log dir: %w", err)
	}
	return &RunLogWriter{dir: dir}, nil
}

// Append writes one run as a JSON line.
func (w *RunLogWriter) Append(run *models.RunResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := fmt.Sprintf("runs-%s.jsonl", time.Now().UTC().Format("20060102"))
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append run %s: %w", run.ID, err)
	}
	return nil
}
