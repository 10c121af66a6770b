// Package report records the outcome of a `tasker run` as a JSON file.
//
// The report captures how completions were spread over the hired workers,
// which is the observable effect of the handler's load balancing, plus any
// tasks abandoned or withdrawn during shutdown. Reports are written
// atomically under a file lock so concurrent runs never interleave.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
)

// WorkerSummary is one worker's share of a run.
type WorkerSummary struct {
	ID        int     `json:"id"`
	Speed     float64 `json:"speed"`
	CostMs    int64   `json:"cost_ms"`
	Completed int     `json:"completed"` // tasks resolved, failures included
	Failed    int     `json:"failed"`
}

// Report is the persisted outcome of one run.
type Report struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Submitted   int             `json:"submitted"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Abandoned   int             `json:"abandoned"`
	Withdrawn   []string        `json:"withdrawn,omitempty"` // task IDs left pending at shutdown
	Interrupted bool            `json:"interrupted"`
	Workers     []WorkerSummary `json:"workers"`
}

// New starts a report for a run beginning now.
func New() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Workers:   []WorkerSummary{},
	}
}

// Finish stamps the end of the run and orders workers by ID.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
	slices.SortFunc(r.Workers, func(a, b WorkerSummary) int { return a.ID - b.ID })
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Share returns the fraction of all completions done by each worker, in the
// order of r.Workers.
func (r *Report) Share() []float64 {
	total := 0
	for _, w := range r.Workers {
		total += w.Completed
	}
	shares := make([]float64, len(r.Workers))
	if total == 0 {
		return shares
	}
	for i, w := range r.Workers {
		shares[i] = float64(w.Completed) / float64(total)
	}
	return shares
}

// ErrLocked is returned by TrySave when another process holds the report lock.
var ErrLocked = errors.New("report is locked by another run")

// Save writes the report to path. The write is atomic: data is written to a
// temporary file first, then renamed into place. A file lock is held during
// the operation for cross-process safety. Missing parent directories are
// created.
func Save(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	return write(path, r)
}

// TrySave is Save without waiting: if another process holds the lock it
// returns ErrLocked and leaves the file untouched.
func TrySave(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	fl := NewFileLock(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return ErrLocked
	}
	defer func() { _ = fl.Unlock() }()

	return write(path, r)
}

// write replaces path with r. The caller holds the lock.
func write(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Load reads a report previously written by Save. A file lock is held
// during the read for cross-process safety.
func Load(path string) (*Report, error) {
	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	if r.Workers == nil {
		r.Workers = []WorkerSummary{}
	}
	return &r, nil
}
