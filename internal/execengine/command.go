package execengine

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// BuildAssistantCommand constructs the argv for the external AI-assistant
// binary: prompt, allowed-tool list, stream-json output format, model,
// verbose. The prompt is passed as the final positional argument; the
// assistant reads it directly rather than from stdin.
func BuildAssistantCommand(binary, prompt, model string, allowedTools []string, verbose bool) []string {
	cmd := []string{binary, "--print", "--output-format", "stream-json"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	if len(allowedTools) > 0 {
		cmd = append(cmd, "--allowedTools", joinTools(allowedTools))
	}
	if verbose {
		cmd = append(cmd, "--verbose")
	}
	cmd = append(cmd, prompt)
	return cmd
}

func joinTools(tools []string) string {
	out := ""
	for i, t := range tools {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

// scratchDirName builds a per-execution scratch directory name under the
// configured scratch root, so concurrent executions never collide. It is
// generated before the Execution Record exists, so it can't be keyed by
// the row id.
func scratchDirName() string {
	return fmt.Sprintf("exec-%s", ulid.Make().String())
}
