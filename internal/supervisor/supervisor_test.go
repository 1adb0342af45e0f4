package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
)

func TestValidateEnvironment_MissingBinary(t *testing.T) {
	err := ValidateEnvironment("mdforge-definitely-not-a-real-binary-xyz")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !errors.Is(err, mdferrors.ErrEnvironmentInvalid) {
		t.Fatalf("expected ErrEnvironmentInvalid, got %v", err)
	}
}

func TestValidateEnvironment_RealBinaryOK(t *testing.T) {
	if err := ValidateEnvironment("sh"); err != nil {
		t.Fatalf("expected sh to resolve on PATH: %v", err)
	}
}

func TestValidateEnvironment_MissingSubBinary(t *testing.T) {
	err := ValidateEnvironment("sh", "mdforge-definitely-not-a-real-sub-binary")
	if err == nil {
		t.Fatal("expected error for missing sub-binary")
	}
}

// TestSpawnDetached_WritesLogAndReturnsPID uses /bin/sh directly in place of
// the real mdforge-wrapper binary (which this exercise never compiles) by
// pointing WrapperPath at a small shell script that mimics the wrapper's
// observable contract: write to the log file, then exit.
func TestSpawnDetached_WritesLogAndReturnsPID(t *testing.T) {
	dir := t.TempDir()
	fakeWrapper := filepath.Join(dir, "fake-wrapper.sh")
	script := "#!/bin/sh\n" +
		"execid=$1; logfile=$2; shift 3\n" +
		"echo \"[mdforge-wrapper] process_started execution_id=$execid\"\n" +
		"\"$@\"\n" +
		"echo \"[mdforge-wrapper] process_stopped execution_id=$execid exit_code=$?\"\n"
	if err := os.WriteFile(fakeWrapper, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake wrapper: %v", err)
	}

	logFile := filepath.Join(dir, "exec.log")
	cfg := Config{
		ExecutionID: 42,
		Cmd:         []string{"echo", "hello-from-child"},
		LogFile:     logFile,
		WrapperPath: fakeWrapper,
	}

	pid, err := SpawnDetached(cfg, obslog.Nop())
	if err != nil {
		t.Fatalf("SpawnDetached: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("expected positive pid, got %d", pid)
	}

	deadline := time.Now().Add(2 * time.Second)
	var content []byte
	for time.Now().Before(deadline) {
		content, _ = os.ReadFile(logFile)
		if len(content) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	s := string(content)
	if s == "" {
		t.Fatal("expected non-empty log file")
	}
	for _, want := range []string{"process_started", "hello-from-child", "process_stopped"} {
		if !strings.Contains(s, want) {
			t.Fatalf("log missing expected marker %q: %q", want, s)
		}
	}
}

func TestSpawnDetached_EmptyCommand(t *testing.T) {
	_, err := SpawnDetached(Config{LogFile: filepath.Join(t.TempDir(), "x.log")}, obslog.Nop())
	if !errors.Is(err, mdferrors.ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
}
