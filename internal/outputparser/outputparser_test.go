package outputparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mdforge/mdforge/internal/obslog"
)

func TestExtractOutputDocID_LastMatchWins(t *testing.T) {
	content := "Created document #101\nsome other text\nSaved as #202\n"
	id, ok := ExtractOutputDocID(content)
	if !ok || id != 202 {
		t.Fatalf("got id=%d ok=%v, want 202/true", id, ok)
	}
}

func TestExtractOutputDocID_NoMatch(t *testing.T) {
	if _, ok := ExtractOutputDocID("nothing interesting here"); ok {
		t.Fatal("expected no match")
	}
}

func TestExtractOutputDocID_StripsANSIAndRichCodes(t *testing.T) {
	content := "\x1b[32mSaved as #42\x1b[0m"
	id, ok := ExtractOutputDocID(content)
	if !ok || id != 42 {
		t.Fatalf("got id=%d ok=%v, want 42/true", id, ok)
	}
}

func TestExtractOutputDocIDFromFile_MissingFileIsNotError(t *testing.T) {
	id, ok := ExtractOutputDocIDFromFile(filepath.Join(t.TempDir(), "nope.log"), obslog.Nop())
	if ok || id != 0 {
		t.Fatalf("expected (0,false) for missing file, got (%d,%v)", id, ok)
	}
}

func TestExtractPRURL_TakesLastAndValidatesPullPath(t *testing.T) {
	content := "Created PR: https://github.com/acme/repo/pull/10\n" +
		"Opened pull request: https://github.com/acme/repo/pull/11"
	url := ExtractPRURL(content)
	if url != "https://github.com/acme/repo/pull/11" {
		t.Fatalf("got %q", url)
	}
}

func TestExtractPRURL_RejectsNonPullLinks(t *testing.T) {
	content := "See https://github.com/acme/repo/issues/5 for context"
	if url := ExtractPRURL(content); url != "" {
		t.Fatalf("expected no match for a non-PR link, got %q", url)
	}
}

func TestExtractPRURL_TrimsTrailingPunctuation(t *testing.T) {
	content := "PR is https://github.com/acme/repo/pull/7."
	if url := ExtractPRURL(content); url != "https://github.com/acme/repo/pull/7" {
		t.Fatalf("got %q", url)
	}
}

func TestExtractPRNumber_PrefersURLOverBareReference(t *testing.T) {
	content := "PR #5\nhttps://github.com/acme/repo/pull/9"
	n, ok := ExtractPRNumber(content)
	if !ok || n != 9 {
		t.Fatalf("got n=%d ok=%v, want 9/true", n, ok)
	}
}

func TestExtractPRNumber_FallsBackToBareReference(t *testing.T) {
	n, ok := ExtractPRNumber("Merged PR #321")
	if !ok || n != 321 {
		t.Fatalf("got n=%d ok=%v, want 321/true", n, ok)
	}
}

func TestExtractAllPRURLs_DeduplicatesAndPreservesPullOnly(t *testing.T) {
	content := "https://github.com/acme/repo/pull/1 and again https://github.com/acme/repo/pull/1, " +
		"plus https://github.com/acme/repo/pull/2"
	urls := ExtractAllPRURLs(content)
	if len(urls) != 2 {
		t.Fatalf("got %v, want 2 unique urls", urls)
	}
}

func TestExtractTokenUsageDetailed_ParsesMarkerLine(t *testing.T) {
	content := "some preamble\n" +
		`__RAW_RESULT_JSON__:{"type":"result","usage":{"input_tokens":10,"output_tokens":20,"cache_creation_input_tokens":5,"cache_read_input_tokens":3},"total_cost_usd":0.042}` +
		"\ntrailing"
	usage := ExtractTokenUsageDetailed(content)
	if usage.Input != 13 || usage.Output != 20 || usage.CacheCreate != 5 || usage.CacheIn != 3 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
	if usage.Total != 38 {
		t.Fatalf("got total %d, want 38", usage.Total)
	}
	if usage.CostUSD != 0.042 {
		t.Fatalf("got cost %v, want 0.042", usage.CostUSD)
	}
}

func TestExtractTokenUsageDetailed_NoMarkerYieldsZeroValue(t *testing.T) {
	usage := ExtractTokenUsageDetailed("nothing here")
	if usage != (TokenUsage{}) {
		t.Fatalf("expected zero value, got %+v", usage)
	}
}

func TestExtractTokenUsageDetailed_MalformedJSONIsSkipped(t *testing.T) {
	content := "__RAW_RESULT_JSON__:{not json}\n" +
		`__RAW_RESULT_JSON__:{"type":"result","usage":{"input_tokens":1,"output_tokens":1,"cache_creation_input_tokens":0,"cache_read_input_tokens":0},"total_cost_usd":0.01}`
	usage := ExtractTokenUsageDetailed(content)
	if usage.Total != 2 {
		t.Fatalf("expected the valid line to still be found, got %+v", usage)
	}
}

func TestExtractTokenUsage_ReturnsTotalOnly(t *testing.T) {
	content := `__RAW_RESULT_JSON__:{"type":"result","usage":{"input_tokens":1,"output_tokens":2,"cache_creation_input_tokens":0,"cache_read_input_tokens":0},"total_cost_usd":0}`
	if got := ExtractTokenUsage(content); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestExtractTokenUsageDetailed_SchemaRejectsNegativeTokenCounts(t *testing.T) {
	content := `__RAW_RESULT_JSON__:{"type":"result","usage":{"input_tokens":-1,"output_tokens":1,"cache_creation_input_tokens":0,"cache_read_input_tokens":0},"total_cost_usd":0}`
	usage := ExtractTokenUsageDetailed(content)
	if usage != (TokenUsage{}) {
		t.Fatalf("expected schema-invalid payload to be skipped, got %+v", usage)
	}
}

func TestExtractToolInvocations_DedupesInFirstSeenOrder(t *testing.T) {
	content := `{"type":"tool_use","name":"Read"}` + "\n" +
		`{"type":"content","content":"hi"}` + "\n" +
		`{"type":"tool_use","name":"Bash"}` + "\n" +
		`{"type":"tool_use","name":"Read"}`
	got := ExtractToolInvocations(content)
	want := []string{"Read", "Bash"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractToolInvocations_NoToolUseLinesYieldsNil(t *testing.T) {
	if got := ExtractToolInvocations("just some text\n{\"type\":\"content\",\"content\":\"hi\"}"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestExtractPRURLFromFile_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exec.log")
	content := "Created PR: https://github.com/acme/repo/pull/3"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if got := ExtractPRURLFromFile(path, obslog.Nop()); got != "https://github.com/acme/repo/pull/3" {
		t.Fatalf("got %q", got)
	}
}
