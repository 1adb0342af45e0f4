package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mdforge/mdforge/internal/execengine"
)

// runAgent implements both `agent run <name|id>` (a registered Agent
// Definition) and the ad-hoc `agent <prompt>` form.
func (a *app) runAgent(args []string) int {
	if len(args) < 1 {
		usage()
		return exitUsage
	}
	if args[0] == "run" {
		return a.agentRun(args[1:])
	}
	return a.agentAdHoc(args)
}

func (a *app) agentRun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "agent run requires <name|id>")
		return exitUsage
	}
	ref := args[0]

	var docID *int64
	query := ""
	background := false
	var varPairs []string

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--doc":
			i++
			if i >= len(args) {
				return exitUsage
			}
			id, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitUsage
			}
			docID = &id
		case "--query":
			i++
			if i >= len(args) {
				return exitUsage
			}
			query = args[i]
		case "--var":
			i++
			if i >= len(args) {
				return exitUsage
			}
			varPairs = append(varPairs, args[i])
		case "--background":
			background = true
		case "--foreground":
			background = false
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}

	def, err := a.resolveAgentDefinition(ref)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}

	vars := parseKV(varPairs)
	content := query
	docTitle := def.DisplayName
	if docID != nil {
		doc, err := a.docs.Get(*docID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFail
		}
		content = doc.Content
		docTitle = doc.Title
	}
	vars["content"] = content

	cfg := execengine.Config{
		AgentName:       def.Name,
		PromptTemplate:  def.UserPromptTemplate,
		Vars:            vars,
		OutputTags:      def.OutputTags(),
		DocID:           docID,
		DocTitle:        docTitle,
		Timeout:         secondsOrDefault(def.TimeoutSeconds, a.cfg.DefaultTimeout),
		AllowedTools:    def.AllowedTools(),
		Model:           a.cfg.AssistantModel,
		AssistantBinary: a.cfg.AssistantBinary,
		LogsRoot:        a.cfg.LogsRoot,
		ScratchRoot:     a.cfg.ScratchRoot,
	}

	if background {
		handle, err := a.exec.ExecuteDetached(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFail
		}
		fmt.Println(handle.ExecutionID)
		return exitOK
	}

	result, err := a.exec.ExecuteSync(cfg)
	_ = a.agents.RecordUsage(def.ID, result.Success)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	fmt.Println(result.ExecutionID)
	if !result.Success {
		return exitFail
	}
	return exitOK
}

// agentAdHoc implements `agent <prompt>`: a one-off execution with no Agent
// Definition, injecting the output instruction so the subprocess saves its
// result as a document and reports that document's id in the log.
func (a *app) agentAdHoc(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "agent <prompt> requires text")
		return exitUsage
	}
	prompt := args[0]
	title := ""
	var tags []string
	pr := false
	verbose := false

	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--title":
			i++
			if i >= len(args) {
				return exitUsage
			}
			title = args[i]
		case "--tags":
			i++
			if i >= len(args) {
				return exitUsage
			}
			tags = strings.Split(args[i], ",")
		case "--pr":
			pr = true
		case "-v", "--verbose":
			verbose = true
		case "--group", "--group-role":
			i++ // accepted for CLI compatibility, not yet surfaced by a store field
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			return exitUsage
		}
	}
	_ = pr // output instruction always asks for a PR URL when produced; no separate code path needed

	cfg := execengine.Config{
		PromptTemplate:          prompt,
		OutputTags:              tags,
		InjectOutputInstruction: true,
		DocTitle:                title,
		Timeout:                 a.cfg.DefaultTimeout,
		AllowedTools:            a.cfg.AllowedTools,
		Model:                   a.cfg.AssistantModel,
		AssistantBinary:         a.cfg.AssistantBinary,
		LogsRoot:                a.cfg.LogsRoot,
		ScratchRoot:             a.cfg.ScratchRoot,
		Verbose:                 verbose,
	}

	result, err := a.exec.ExecuteSync(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFail
	}
	fmt.Println(result.ExecutionID)
	if !result.Success {
		return exitFail
	}
	return exitOK
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
