package agentdef

import (
	"testing"

	"github.com/mdforge/mdforge/internal/storage"
)

func TestToolAllowed_ExactMatch(t *testing.T) {
	if !ToolAllowed([]string{"Read", "Write"}, "Read") {
		t.Fatal("expected exact match to be allowed")
	}
}

func TestToolAllowed_GlobMatch(t *testing.T) {
	if !ToolAllowed([]string{"Bash(git *)"}, "Bash(git status)") {
		t.Fatal("expected glob pattern to match")
	}
}

func TestToolAllowed_RejectsNonMatchingGlob(t *testing.T) {
	if ToolAllowed([]string{"Bash(git *)"}, "Bash(rm -rf /)") {
		t.Fatal("expected non-matching command to be rejected")
	}
}

func TestToolAllowed_EmptyAllowlistPermitsNothing(t *testing.T) {
	if ToolAllowed(nil, "Read") {
		t.Fatal("expected empty allowlist to permit nothing")
	}
}

func TestValidateStructuredPayload_AcceptsConformingJSON(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"tasks"},
		"properties": map[string]any{
			"tasks": map[string]any{"type": "array"},
		},
	}
	err := ValidateStructuredPayload(schema, []byte(`{"tasks":["a","b"]}`))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestValidateStructuredPayload_RejectsMissingRequiredField(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"tasks"},
	}
	err := ValidateStructuredPayload(schema, []byte(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidateStructuredPayload_RejectsMalformedJSON(t *testing.T) {
	err := ValidateStructuredPayload(map[string]any{"type": "object"}, []byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON payload")
	}
}

func TestValidateAgentInput_RejectsNameWithSpaces(t *testing.T) {
	err := validateAgentInput(storage.AgentDefinitionInput{Name: "my agent"})
	if err == nil {
		t.Fatal("expected error for name containing spaces")
	}
}

func TestValidateAgentInput_RejectsEmptyName(t *testing.T) {
	err := validateAgentInput(storage.AgentDefinitionInput{Name: ""})
	if err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestValidateAgentInput_AcceptsWellFormedInput(t *testing.T) {
	err := validateAgentInput(storage.AgentDefinitionInput{
		Name:         "reviewer",
		AllowedTools: []string{"Read", "Bash(git *)"},
		OutputTags:   []string{"review"},
	})
	if err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
}

func TestValidateAgentInput_AcceptsNilToolsAndTags(t *testing.T) {
	err := validateAgentInput(storage.AgentDefinitionInput{Name: "reviewer"})
	if err != nil {
		t.Fatalf("expected nil allowed_tools/output_tags to be valid, got %v", err)
	}
}

func TestValidateAgentInput_RejectsEmptyStringInAllowedTools(t *testing.T) {
	err := validateAgentInput(storage.AgentDefinitionInput{
		Name:         "reviewer",
		AllowedTools: []string{""},
	})
	if err == nil {
		t.Fatal("expected error for empty string in allowed_tools")
	}
}
