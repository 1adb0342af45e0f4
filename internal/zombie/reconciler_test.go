package zombie

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// fakeStore is a minimal in-memory storage.ExecutionRecordStore for testing
// the reconciler's scan logic in isolation from GORM/SQLite.
type fakeStore struct {
	mu   sync.Mutex
	rows map[int64]storage.ExecutionRow
}

func newFakeStore(rows ...storage.ExecutionRow) *fakeStore {
	m := make(map[int64]storage.ExecutionRow)
	for _, r := range rows {
		m[r.ID] = r
	}
	return &fakeStore{rows: m}
}

func (f *fakeStore) Create(docID *int64, docTitle, logFile, workingDir string) (int64, error) {
	panic("not used in this test")
}
func (f *fakeStore) SetPID(id int64, pid int) error { return nil }

func (f *fakeStore) SetStatus(id int64, status storage.ExecutionStatus, exitCode *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Status = string(status)
	row.ExitCode = exitCode
	f.rows[id] = row
	return nil
}

func (f *fakeStore) SetCascadeRunID(id int64, cascadeRunID int64) error { return nil }
func (f *fakeStore) SetLogContentSHA(id int64, sha string) error       { return nil }

func (f *fakeStore) Get(id int64) (storage.ExecutionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeStore) ListRecent(limit int) ([]storage.ExecutionRow, error) { return nil, nil }

func (f *fakeStore) ListRunning() ([]storage.ExecutionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.ExecutionRow
	for _, r := range f.rows {
		if r.Status == string(storage.ExecutionRunning) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByCascadeRun(cascadeRunID int64) ([]storage.ExecutionRow, error) { return nil, nil }

func (f *fakeStore) statusOf(id int64) storage.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.ExecutionStatus(f.rows[id].Status)
}

func (f *fakeStore) exitCodeOf(id int64) *int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].ExitCode
}

func TestReconciler_MarksDeadPIDAsFailed(t *testing.T) {
	const farPID = 1 << 30
	store := newFakeStore(storage.ExecutionRow{
		ID:        1,
		Status:    string(storage.ExecutionRunning),
		StartedAt: time.Now().Add(-time.Hour),
		PID:       intPtr(farPID),
		LogFile:   "",
	})

	r := New(store, time.Hour, time.Millisecond, obslog.Nop())
	r.scanOnce()

	if got := store.statusOf(1); got != storage.ExecutionFailed {
		t.Fatalf("got status %q, want failed", got)
	}
	if got := store.exitCodeOf(1); got == nil || *got != -1 {
		t.Fatalf("got exit code %v, want -1 per spec §7's Zombie error kind", got)
	}
}

func TestReconciler_LeavesLivePIDAlone(t *testing.T) {
	store := newFakeStore(storage.ExecutionRow{
		ID:        2,
		Status:    string(storage.ExecutionRunning),
		StartedAt: time.Now(),
		PID:       intPtr(os.Getpid()),
	})

	r := New(store, time.Hour, time.Millisecond, obslog.Nop())
	r.scanOnce()

	if got := store.statusOf(2); got != storage.ExecutionRunning {
		t.Fatalf("got status %q, want still running", got)
	}
}

func TestReconciler_WithinGraceWindowIsNotZombie(t *testing.T) {
	store := newFakeStore(storage.ExecutionRow{
		ID:        3,
		Status:    string(storage.ExecutionRunning),
		StartedAt: time.Now(),
		PID:       nil,
	})

	r := New(store, time.Hour, time.Hour, obslog.Nop())
	r.scanOnce()

	if got := store.statusOf(3); got != storage.ExecutionRunning {
		t.Fatalf("got status %q, want still running within grace", got)
	}
}

func TestReconciler_NoPIDPastGraceIsZombie(t *testing.T) {
	store := newFakeStore(storage.ExecutionRow{
		ID:        4,
		Status:    string(storage.ExecutionRunning),
		StartedAt: time.Now().Add(-time.Hour),
		PID:       nil,
	})

	r := New(store, time.Hour, time.Millisecond, obslog.Nop())
	r.scanOnce()

	if got := store.statusOf(4); got != storage.ExecutionFailed {
		t.Fatalf("got status %q, want failed", got)
	}
	if got := store.exitCodeOf(4); got == nil || *got != -1 {
		t.Fatalf("got exit code %v, want -1 per spec §7's Zombie error kind", got)
	}
}

func intPtr(v int) *int { return &v }
