// Package agentdef is the service layer over Agent Definitions: it adds
// structured-payload validation and tool-allowlist glob matching on top of
// internal/storage.AgentDefinitionStore. Schema compilation is grounded on
// a jsonschema compilation pattern seen elsewhere in the example pack;
// doublestar provides the glob matching allowed_tools entries like
// "Bash(git *)" need.
package agentdef

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// Service wraps storage.AgentDefinitionStore with behaviors beyond plain
// CRUD: schema validation on structured output tags, and allowlist matching
// for tool invocation requests a subprocess makes.
type Service struct {
	store storage.AgentDefinitionStore
	log   *obslog.Logger
}

// New constructs a Service.
func New(store storage.AgentDefinitionStore, log *obslog.Logger) *Service {
	return &Service{store: store, log: log.With("component", "agentdef")}
}

// Create validates in (name shape, allowed_tools/output_tags arrays against
// agentFieldsSchema) before delegating to the store.
func (s *Service) Create(in storage.AgentDefinitionInput) (int64, error) {
	if err := validateAgentInput(in); err != nil {
		return 0, err
	}
	return s.store.Create(in)
}

// Update delegates to the store after the same validation as Create.
func (s *Service) Update(id int64, in storage.AgentDefinitionInput) error {
	if err := validateAgentInput(in); err != nil {
		return err
	}
	return s.store.Update(id, in)
}

// agentFieldsSchema constrains allowed_tools and output_tags to arrays of
// non-empty strings.
var agentFieldsSchema = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string", "minLength": 1},
}

// validateAgentInput enforces spec §3's Agent Definition invariant that
// name is a space-free identifier, and schema-validates the two
// JSON-encoded array fields via ValidateStructuredPayload/agentFieldsSchema
// before they ever reach the store.
func validateAgentInput(in storage.AgentDefinitionInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: agent name is required", mdferrors.ErrInvalidState)
	}
	if strings.ContainsAny(in.Name, " \t\n") {
		return fmt.Errorf("%w: agent name %q must not contain spaces", mdferrors.ErrInvalidState, in.Name)
	}
	if err := validateStringArray(in.AllowedTools); err != nil {
		return fmt.Errorf("allowed_tools: %w", err)
	}
	if err := validateStringArray(in.OutputTags); err != nil {
		return fmt.Errorf("output_tags: %w", err)
	}
	return nil
}

func validateStringArray(vals []string) error {
	if vals == nil {
		vals = []string{}
	}
	payload, err := json.Marshal(vals)
	if err != nil {
		return err
	}
	return ValidateStructuredPayload(agentFieldsSchema, payload)
}

// Get, GetByName, List, SetActive, RecordUsage pass straight through; they
// exist on Service so callers depend on one narrower interface instead of
// storage.AgentDefinitionStore directly.
func (s *Service) Get(id int64) (storage.AgentRow, error)             { return s.store.Get(id) }
func (s *Service) GetByName(name string) (storage.AgentRow, error)    { return s.store.GetByName(name) }
func (s *Service) List(includeInactive bool) ([]storage.AgentRow, error) {
	return s.store.List(includeInactive)
}
func (s *Service) SetActive(id int64, active bool) error     { return s.store.SetActive(id, active) }
func (s *Service) RecordUsage(id int64, success bool) error  { return s.store.RecordUsage(id, success) }

// ToolAllowed reports whether requestedTool matches one of agent's allowed
// tool glob patterns, e.g. "Bash(git *)" allowing "Bash(git status)" but
// not "Bash(rm -rf /)". Patterns without special glob characters must match
// exactly. An agent with an empty allowlist permits nothing — callers must
// opt in explicitly, there is no implicit wildcard.
func ToolAllowed(allowedTools []string, requestedTool string) bool {
	for _, pattern := range allowedTools {
		if pattern == requestedTool {
			return true
		}
		if ok, err := doublestar.Match(pattern, requestedTool); err == nil && ok {
			return true
		}
	}
	return false
}

// ValidateStructuredPayload compiles schema and validates payload against
// it, returning a descriptive error on failure. validateStringArray uses it
// to check an agent definition's allowed_tools and output_tags arrays
// against agentFieldsSchema.
func ValidateStructuredPayload(schema map[string]any, payload []byte) error {
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: payload is not valid JSON: %v", mdferrors.ErrInvalidState, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", mdferrors.ErrInvalidState, err)
	}
	return nil
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
