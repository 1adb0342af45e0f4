package execengine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mdforge/mdforge/internal/logstream"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// fakeExecStore is a minimal in-memory storage.ExecutionRecordStore.
type fakeExecStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]storage.ExecutionRow
}

func newFakeExecStore() *fakeExecStore {
	return &fakeExecStore{rows: make(map[int64]storage.ExecutionRow)}
}

func (f *fakeExecStore) Create(docID *int64, docTitle, logFile, workingDir string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows[f.nextID] = storage.ExecutionRow{
		ID: f.nextID, DocID: docID, DocTitle: docTitle,
		Status: string(storage.ExecutionRunning), StartedAt: time.Now(),
		LogFile: logFile, WorkingDir: workingDir,
	}
	return f.nextID, nil
}

func (f *fakeExecStore) SetPID(id int64, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.PID = &pid
	f.rows[id] = row
	return nil
}

func (f *fakeExecStore) SetStatus(id int64, status storage.ExecutionStatus, exitCode *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Status = string(status)
	row.ExitCode = exitCode
	f.rows[id] = row
	return nil
}

func (f *fakeExecStore) SetCascadeRunID(id int64, cascadeRunID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.CascadeRunID = &cascadeRunID
	f.rows[id] = row
	return nil
}

func (f *fakeExecStore) SetLogContentSHA(id int64, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.LogContentSHA = sha
	f.rows[id] = row
	return nil
}

func (f *fakeExecStore) Get(id int64) (storage.ExecutionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeExecStore) ListRecent(limit int) ([]storage.ExecutionRow, error) { return nil, nil }
func (f *fakeExecStore) ListRunning() ([]storage.ExecutionRow, error)        { return nil, nil }
func (f *fakeExecStore) ListByCascadeRun(id int64) ([]storage.ExecutionRow, error) {
	return nil, nil
}

func (f *fakeExecStore) statusOf(id int64) storage.ExecutionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.ExecutionStatus(f.rows[id].Status)
}

// writeFakeWrapper writes a shell script standing in for mdforge-wrapper:
// it runs the real command (everything after "--") and nothing else,
// exercising exactly the contract SpawnDetached depends on.
func writeFakeWrapper(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-wrapper.sh")
	script := "#!/bin/sh\nshift 3\nexec \"$@\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake wrapper: %v", err)
	}
	return path
}

// writeFakeAssistant writes a shell script standing in for the external
// AI-assistant binary: it ignores every flag BuildAssistantCommand adds and
// always emits the given body as its stream-json output.
func writeFakeAssistant(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-assistant.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write fake assistant: %v", err)
	}
	return path
}

func TestExecuteSync_S1HappySyncScenario(t *testing.T) {
	dir := t.TempDir()
	wrapper := writeFakeWrapper(t, dir)
	assistant := writeFakeAssistant(t, dir, "#!/bin/sh\n"+
		"echo '{\"type\":\"content\",\"content\":\"Refined prompt text\"}'\n"+
		"echo '{\"type\":\"result\",\"subtype\":\"success\",\"is_error\":false,\"result\":\"Refined prompt text\"}'\n")

	store := newFakeExecStore()
	eng := New(store, logstream.NewManager(obslog.Nop()), obslog.Nop())

	res, err := eng.ExecuteSync(Config{
		PromptTemplate:  "Add dark mode",
		LogsRoot:        dir,
		AssistantBinary: assistant,
		WrapperPath:     wrapper,
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if store.statusOf(res.ExecutionID) != storage.ExecutionCompleted {
		t.Fatalf("expected completed status, got %q", store.statusOf(res.ExecutionID))
	}
}

func TestExecuteSync_S2StageTimeout(t *testing.T) {
	dir := t.TempDir()
	wrapper := writeFakeWrapper(t, dir)
	assistant := writeFakeAssistant(t, dir, "#!/bin/sh\nsleep 10\n")

	store := newFakeExecStore()
	eng := New(store, logstream.NewManager(obslog.Nop()), obslog.Nop())

	res, err := eng.ExecuteSync(Config{
		PromptTemplate:  "slow task",
		LogsRoot:        dir,
		AssistantBinary: assistant,
		WrapperPath:     wrapper,
		Timeout:         1 * time.Second,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if res.Success {
		t.Fatalf("expected failure result, got %+v", res)
	}
	if res.ExitCode != -1 {
		t.Fatalf("expected exit_code -1 on timeout, got %d", res.ExitCode)
	}
	if store.statusOf(res.ExecutionID) != storage.ExecutionFailed {
		t.Fatalf("expected failed status, got %q", store.statusOf(res.ExecutionID))
	}
}

func TestExecuteSync_S4PRURLExtraction(t *testing.T) {
	dir := t.TempDir()
	wrapper := writeFakeWrapper(t, dir)
	assistant := writeFakeAssistant(t, dir, "#!/bin/sh\n"+
		"echo 'Done. PR_URL: https://github.com/acme/x/pull/17'\n"+
		"echo '{\"type\":\"result\",\"subtype\":\"success\",\"is_error\":false,\"result\":\"done\"}'\n")

	store := newFakeExecStore()
	eng := New(store, logstream.NewManager(obslog.Nop()), obslog.Nop())

	res, err := eng.ExecuteSync(Config{
		PromptTemplate:  "ship it",
		LogsRoot:        dir,
		AssistantBinary: assistant,
		WrapperPath:     wrapper,
		Timeout:         5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if res.PRUrl != "https://github.com/acme/x/pull/17" {
		t.Fatalf("got PR url %q", res.PRUrl)
	}
}
