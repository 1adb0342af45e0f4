package execengine

import (
	"testing"
)

func TestSubstituteVars_ReplacesKnownLeavesUnknown(t *testing.T) {
	got := substituteVars("Hello {{name}}, your {{missing}} awaits", map[string]string{"name": "Ada"})
	want := "Hello Ada, your {{missing}} awaits"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandFileReferences_MissingFileLeavesMarker(t *testing.T) {
	got := expandFileReferences("see @does-not-exist.md for context")
	want := "see [File not found: does-not-exist.md] for context"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildPrompt_InjectsOutputInstructionWhenRequested(t *testing.T) {
	got := BuildPrompt("do the thing", nil, []string{"release"}, true)
	if got == "do the thing" {
		t.Fatal("expected output instruction to be appended")
	}
	if !contains(got, "Saved as #123") {
		t.Fatalf("expected example save phrasing in instruction, got %q", got)
	}
}

func TestBuildPrompt_NoInstructionWhenNotRequested(t *testing.T) {
	got := BuildPrompt("do the thing", nil, nil, false)
	if got != "do the thing" {
		t.Fatalf("got %q, want unchanged prompt", got)
	}
}

func TestBuildAssistantCommand_IncludesModelAndTools(t *testing.T) {
	cmd := BuildAssistantCommand("claude", "hello", "opus", []string{"Read", "Write"}, true)
	joined := ""
	for _, a := range cmd {
		joined += a + " "
	}
	for _, want := range []string{"claude", "--model opus", "Read,Write", "--verbose", "hello"} {
		if !contains(joined, want) {
			t.Fatalf("command %q missing %q", joined, want)
		}
	}
}

func TestFindTerminalLine_LocatesResultType(t *testing.T) {
	content := []byte("not json\n{\"type\":\"content\",\"content\":\"hi\"}\n{\"type\":\"result\",\"is_error\":false,\"result\":\"ok\"}\n")
	line, ok := findTerminalLine(content)
	if !ok || line.IsError {
		t.Fatalf("expected terminal success line, got %+v ok=%v", line, ok)
	}
}

func TestFindTerminalLine_NoResultLine(t *testing.T) {
	if _, ok := findTerminalLine([]byte("just some text\n{\"type\":\"content\"}\n")); ok {
		t.Fatal("expected no terminal line to be found")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return len(sub) == 0
}
