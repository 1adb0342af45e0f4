// Package cascade drives the fixed idea→prompt→analyzed→planned→done
// document pipeline: it selects a document at a stage, runs it through the
// Execution Engine with that stage's prompt template, and on success
// creates the child document at the next stage. Grounded on a
// workflow-graph node-dispatch shape, collapsed here to a single fixed
// chain instead of an arbitrary graph.
package cascade

import (
	"fmt"
	"strings"
	"time"

	"github.com/mdforge/mdforge/internal/execengine"
	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/storage"
)

// DefaultStagePrompts are the built-in stage prompt templates, each with a
// single "{content}" hole, used when the caller's configuration doesn't
// override a stage. "done" is terminal and has no template.
var DefaultStagePrompts = map[storage.Stage]string{
	storage.StageIdea:     "Refine this idea into a clear, actionable engineering prompt:\n\n{content}",
	storage.StagePrompt:   "Analyze the following engineering prompt and produce a technical analysis covering approach, risks, and open questions:\n\n{content}",
	storage.StageAnalyzed: "Produce a concrete, stepwise implementation plan based on this analysis:\n\n{content}",
	storage.StagePlanned:  "Implement the following plan. When finished, open a pull request and report its full URL on its own line:\n\n{content}",
}

// implTimeoutStage is the one stage transition that gets the longer
// "implementation" timeout instead of the default.
const implTimeoutStage = storage.StagePlanned

// Engine drives the cascade state machine.
type Engine struct {
	docs    storage.DocumentStore
	execs   storage.ExecutionRecordStore
	runs    storage.CascadeRunStore
	exec    *execengine.Engine
	prompts map[storage.Stage]string

	defaultTimeout time.Duration
	implTimeout    time.Duration

	assistantBinary string
	allowedTools    []string
	model           string
	logsRoot        string
	scratchRoot     string
	wrapperPath     string

	log *obslog.Logger
}

// Options configures a new Engine.
type Options struct {
	Prompts         map[storage.Stage]string
	DefaultTimeout  time.Duration
	ImplTimeout     time.Duration
	AssistantBinary string
	AllowedTools    []string
	Model           string
	LogsRoot        string
	ScratchRoot     string
	// WrapperPath overrides the mdforge-wrapper binary location; tests use
	// this to substitute a fake wrapper script.
	WrapperPath string
}

// New constructs a cascade Engine.
func New(docs storage.DocumentStore, execs storage.ExecutionRecordStore, runs storage.CascadeRunStore, execEngine *execengine.Engine, opts Options, log *obslog.Logger) *Engine {
	prompts := make(map[storage.Stage]string, len(DefaultStagePrompts))
	for k, v := range DefaultStagePrompts {
		prompts[k] = v
	}
	for k, v := range opts.Prompts {
		prompts[k] = v
	}
	return &Engine{
		docs: docs, execs: execs, runs: runs, exec: execEngine, prompts: prompts,
		defaultTimeout:  opts.DefaultTimeout,
		implTimeout:     opts.ImplTimeout,
		assistantBinary: opts.AssistantBinary,
		allowedTools:    opts.AllowedTools,
		model:           opts.Model,
		logsRoot:        opts.LogsRoot,
		scratchRoot:     opts.ScratchRoot,
		wrapperPath:     opts.WrapperPath,
		log:             log.With("component", "cascade"),
	}
}

func (e *Engine) timeoutFor(stage storage.Stage) time.Duration {
	if stage == implTimeoutStage {
		return e.implTimeout
	}
	return e.defaultTimeout
}

func (e *Engine) renderPrompt(stage storage.Stage, content string) (string, error) {
	tmpl, ok := e.prompts[stage]
	if !ok {
		return "", fmt.Errorf("%w: no prompt template for stage %q", mdferrors.ErrInvalidState, stage)
	}
	return strings.ReplaceAll(tmpl, "{content}", content), nil
}

// Add creates the initial document at startStage: with auto+sync it drives
// the cascade to completion in the caller's goroutine; with auto and not
// sync it spawns only the first stage detached; without auto it just
// creates the document. Unlike StartRun, Add never opens a Cascade Run row,
// so its stage transitions aren't grouped for later querying.
func (e *Engine) Add(content, title string, startStage storage.Stage, auto, sync bool) (int64, error) {
	if title == "" {
		title = deriveTitle(content)
	}
	docID, err := e.docs.Create(title, content, "", nil)
	if err != nil {
		return 0, err
	}
	if err := e.docs.SetStage(docID, &startStage); err != nil {
		return 0, err
	}
	if !auto {
		return docID, nil
	}

	if sync {
		stage := startStage
		for {
			res, err := e.Process(stage, &docID, true)
			if err != nil || !res.Success {
				return docID, err
			}
			if res.ChildDocID == nil {
				// Advanced in place (empty output); re-read the current stage.
				doc, getErr := e.docs.Get(docID)
				if getErr != nil {
					return docID, getErr
				}
				if doc.Stage == nil || doc.Stage.Terminal() {
					return docID, nil
				}
				stage = *doc.Stage
				continue
			}
			docID = *res.ChildDocID
			next, ok := stage.Next()
			if !ok || next.Terminal() {
				return docID, nil
			}
			stage = next
		}
	}

	_, err = e.Process(startStage, &docID, false)
	return docID, err
}

func deriveTitle(content string) string {
	const maxLen = 60
	line := strings.SplitN(strings.TrimSpace(content), "\n", 2)[0]
	if len(line) > maxLen {
		return line[:maxLen]
	}
	if line == "" {
		return "untitled"
	}
	return line
}
