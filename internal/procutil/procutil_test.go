package procutil

import (
	"os"
	"testing"
)

func TestPIDAlive_SelfIsAlive(t *testing.T) {
	if !PIDAlive(os.Getpid()) {
		t.Fatalf("expected current process to be alive")
	}
}

func TestPIDAlive_InvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if PIDAlive(pid) {
			t.Fatalf("PIDAlive(%d) = true, want false", pid)
		}
	}
}

func TestPIDAlive_NonexistentPID(t *testing.T) {
	// A PID far beyond any plausible live process on a test runner.
	const farPID = 1 << 30
	if PIDAlive(farPID) {
		t.Fatalf("expected PID %d to be reported dead", farPID)
	}
}

func TestKillPID_NonexistentIsNotError(t *testing.T) {
	if err := KillPID(1 << 30); err != nil {
		t.Fatalf("KillPID on dead pid returned error: %v", err)
	}
}

func TestKillPID_ZeroIsNoop(t *testing.T) {
	if err := KillPID(0); err != nil {
		t.Fatalf("KillPID(0) returned error: %v", err)
	}
}
