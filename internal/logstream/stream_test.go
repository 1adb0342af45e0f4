package logstream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdforge/mdforge/internal/obslog"
)

func TestStream_SubscribeThenAppend_DeliversDeltas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, err := Open(path, true, obslog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	deltas, _, unsub := s.Subscribe()
	defer unsub()

	chunks := []string{"content one\n", "content two\n", "content three\n"}
	go func() {
		f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		defer f.Close()
		for _, c := range chunks {
			f.WriteString(c)
			f.Sync()
			time.Sleep(100 * time.Millisecond)
		}
	}()

	var got []byte
	deadline := time.After(3 * time.Second)
	for len(got) < len("content one\ncontent two\ncontent three\n") {
		select {
		case d := <-deltas:
			got = append(got, d...)
		case <-deadline:
			t.Fatalf("timed out waiting for deltas, got so far: %q", got)
		}
	}

	want := "content one\ncontent two\ncontent three\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStream_GetInitialContent_ReflectsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.log")
	if err := os.WriteFile(path, []byte("already here\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	s, err := Open(path, false, obslog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := string(s.GetInitialContent()); got != "already here\n" {
		t.Fatalf("got %q", got)
	}
}

func TestStream_Close_ClosesSubscriberChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.log")
	os.WriteFile(path, nil, 0o644)

	s, err := Open(path, true, obslog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	deltas, doneCh, unsub := s.Subscribe()
	defer unsub()

	s.Close()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("doneCh not closed after Close")
	}

	select {
	case _, ok := <-deltas:
		if ok {
			t.Fatal("expected deltas channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("deltas channel never closed")
	}
}

func TestManager_OpenForIsIdempotentPerExecution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.log")
	os.WriteFile(path, nil, 0o644)

	m := NewManager(obslog.Nop())
	s1, err := m.OpenFor(1, path, true)
	if err != nil {
		t.Fatalf("OpenFor: %v", err)
	}
	s2, err := m.OpenFor(1, path, true)
	if err != nil {
		t.Fatalf("OpenFor second call: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same Stream instance for the same execution id")
	}
	m.CloseFor(1)
	if _, ok := m.Get(1); ok {
		t.Fatal("expected stream to be forgotten after CloseFor")
	}
}
