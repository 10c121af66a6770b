package report

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sampleReport() *Report {
	r := New()
	r.Submitted = 10
	r.Succeeded = 8
	r.Failed = 1
	r.Abandoned = 1
	r.Withdrawn = []string{"t9"}
	r.Workers = []WorkerSummary{
		{ID: 2, Speed: 2, CostMs: 10, Completed: 6},
		{ID: 1, Speed: 1, CostMs: 20, Completed: 2, Failed: 1},
	}
	r.Finish()
	return r
}

func TestNew(t *testing.T) {
	r := New()
	if _, err := uuid.Parse(r.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", r.RunID, err)
	}
	if r.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
	if r.Duration() != 0 {
		t.Errorf("Duration() before Finish = %v, want 0", r.Duration())
	}
	if New().RunID == r.RunID {
		t.Error("run IDs should be unique")
	}
}

func TestFinish(t *testing.T) {
	r := sampleReport()

	ids := []int{r.Workers[0].ID, r.Workers[1].ID}
	if !slices.Equal(ids, []int{1, 2}) {
		t.Errorf("workers ordered %v, want [1 2]", ids)
	}
	if r.Duration() < 0 || r.FinishedAt.Before(r.StartedAt) {
		t.Errorf("FinishedAt %v before StartedAt %v", r.FinishedAt, r.StartedAt)
	}
}

func TestShare(t *testing.T) {
	tests := []struct {
		name    string
		workers []WorkerSummary
		want    []float64
	}{
		{"empty", nil, []float64{}},
		{"no completions", []WorkerSummary{{ID: 1}, {ID: 2}}, []float64{0, 0}},
		{"split", []WorkerSummary{{ID: 1, Completed: 1}, {ID: 2, Completed: 3}}, []float64{0.25, 0.75}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Workers: tt.workers}
			if got := r.Share(); !slices.Equal(got, tt.want) {
				t.Errorf("Share() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "last-run.json")
	r := sampleReport()

	if err := Save(path, r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.RunID != r.RunID {
		t.Errorf("RunID = %q, want %q", loaded.RunID, r.RunID)
	}
	if !loaded.StartedAt.Equal(r.StartedAt) || !loaded.FinishedAt.Equal(r.FinishedAt) {
		t.Errorf("timestamps changed: %v..%v, want %v..%v",
			loaded.StartedAt, loaded.FinishedAt, r.StartedAt, r.FinishedAt)
	}
	if loaded.Submitted != 10 || loaded.Succeeded != 8 || loaded.Failed != 1 || loaded.Abandoned != 1 {
		t.Errorf("counts = %+v", loaded)
	}
	if !slices.Equal(loaded.Withdrawn, []string{"t9"}) {
		t.Errorf("Withdrawn = %v", loaded.Withdrawn)
	}
	if !slices.Equal(loaded.Workers, r.Workers) {
		t.Errorf("Workers = %+v, want %+v", loaded.Workers, r.Workers)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-run.json")

	if err := Save(path, sampleReport()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Temp file should not exist after save
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be removed after atomic rename")
	}
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-run.json")

	first := sampleReport()
	if err := Save(path, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	second := New()
	second.Interrupted = true
	second.Finish()
	if err := Save(path, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.RunID != second.RunID || !loaded.Interrupted {
		t.Errorf("Load() returned run %s, want the latest %s", loaded.RunID, second.RunID)
	}
	if loaded.Workers == nil {
		t.Error("Workers should never load as nil")
	}
}

func TestSave_BlockedByLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last-run.json")
	fl := NewFileLock(path)
	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- Save(path, sampleReport()) }()

	select {
	case err := <-done:
		t.Fatalf("Save returned %v while the lock was held", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Save did not proceed after the lock was released")
	}
}

func TestTrySave(t *testing.T) {
	tests := []struct {
		name    string
		hold    bool
		wantErr error
	}{
		{"uncontended", false, nil},
		{"contended", true, ErrLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "last-run.json")
			if tt.hold {
				if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
					t.Fatal(err)
				}
				fl := NewFileLock(path)
				if err := fl.Lock(); err != nil {
					t.Fatalf("Lock: %v", err)
				}
				t.Cleanup(func() { _ = fl.Unlock() })
			}

			done := make(chan error, 1)
			go func() { done <- TrySave(path, sampleReport()) }()

			var err error
			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("TrySave blocked")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TrySave = %v, want %v", err, tt.wantErr)
			}

			_, statErr := os.Stat(path)
			if written := statErr == nil; written != (tt.wantErr == nil) {
				t.Errorf("report written = %v, want %v", written, tt.wantErr == nil)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Load of a missing report should fail")
	}

	garbled := filepath.Join(dir, "garbled.json")
	if err := os.WriteFile(garbled, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(garbled); err == nil {
		t.Error("Load of a garbled report should fail")
	}

	if _, err := Load("/nonexistent/dir/run.json"); err == nil {
		t.Error("Load from a nonexistent directory should fail")
	}
}

func TestSave_InvalidDirectory(t *testing.T) {
	// A regular file cannot be used as a parent directory.
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Save(filepath.Join(file, "run.json"), sampleReport()); err == nil {
		t.Error("Save under a regular file should fail")
	}
}
