package execengine

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// substituteVars replaces every "{{name}}" in template with vars["name"],
// leaving unknown placeholders untouched so a missing variable is visible
// in the resulting prompt rather than silently vanishing.
func substituteVars(template string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

var fileRefPattern = regexp.MustCompile(`@(\S+)`)

// expandFileReferences inlines the content of any "@path" token as a fenced
// code block, ported from parse_task_content in
// original_source/emdx/services/claude_executor.py. A reference to a file
// that doesn't exist is left as a visible "[File not found: ...]" marker
// rather than silently dropped, matching the original's behavior.
func expandFileReferences(task string) string {
	return fileRefPattern.ReplaceAllStringFunc(task, func(match string) string {
		filename := match[1:]
		info, err := os.Stat(filename)
		if err != nil || info.IsDir() {
			return fmt.Sprintf("[File not found: %s]", filename)
		}
		content, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Sprintf("[File not found: %s]", filename)
		}
		return fmt.Sprintf("\n\nHere is the content of %s:\n\n```\n%s\n```", filename, string(content))
	})
}

// outputInstruction is appended to every prompt that expects the agent to
// report an artifact id back through the log rather than through a direct
// return value: the agent is the only thing that knows its own final save,
// so it's told how to announce it.
func outputInstruction(tags []string) string {
	var b strings.Builder
	b.WriteString("\n\nWhen you are done, save your final output as a document")
	if len(tags) > 0 {
		fmt.Fprintf(&b, " tagged %s", strings.Join(tags, ", "))
	}
	b.WriteString(" and report its document id clearly, e.g. \"Saved as #123\". ")
	b.WriteString("If you open a pull request, report its full URL on its own line.")
	return b.String()
}

// BuildPrompt composes the effective prompt sent to the assistant: variable
// substitution, then @file expansion, then (optionally) the output
// instruction suffix.
func BuildPrompt(template string, vars map[string]string, outputTags []string, injectOutputInstruction bool) string {
	prompt := substituteVars(template, vars)
	prompt = expandFileReferences(prompt)
	if injectOutputInstruction {
		prompt += outputInstruction(outputTags)
	}
	return prompt
}
