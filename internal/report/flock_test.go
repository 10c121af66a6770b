package report

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLock_LockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	fl := NewFileLock(path)

	if err := fl.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Lock file should exist next to the report
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "run.json"))

	// Unlock without Lock should be a no-op
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock without Lock should not error: %v", err)
	}
}

func TestFileLock_TryLockContended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	fl := NewFileLock(path)

	acquired, err := fl.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !acquired {
		t.Fatal("TryLock should succeed when lock is available")
	}

	// flock locks belong to the open file description, so a second open
	// of the same lock file conflicts even within one process.
	other := NewFileLock(path)
	acquired, err = other.TryLock()
	if err != nil {
		t.Fatalf("second TryLock: %v", err)
	}
	if acquired {
		_ = other.Unlock()
		t.Error("second TryLock should fail while the lock is held")
	}

	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	acquired, err = other.TryLock()
	if err != nil || !acquired {
		t.Errorf("TryLock after release = %v, %v; want true, nil", acquired, err)
	}
	_ = other.Unlock()
}

func TestFileLock_InvalidDir(t *testing.T) {
	fl := NewFileLock("/nonexistent/dir/run.json")
	if err := fl.Lock(); err == nil {
		t.Error("Lock should fail for nonexistent directory")
	}
	if _, err := fl.TryLock(); err == nil {
		t.Error("TryLock should fail for nonexistent directory")
	}
}

func TestFileLock_ReusableAfterUnlock(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "run.json"))

	for i := range 2 {
		if err := fl.Lock(); err != nil {
			t.Fatalf("Lock %d: %v", i, err)
		}
		if err := fl.Unlock(); err != nil {
			t.Fatalf("Unlock %d: %v", i, err)
		}
	}
}
