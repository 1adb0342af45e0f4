// Package execengine is the Execution Engine façade: it composes the
// Process Supervisor, the Execution Record Store, and the Output Parser
// behind two entry points, ExecuteSync and ExecuteDetached. Grounded on a
// spawn-then-watch runOnce closure pattern, generalized from invoking one
// step of a workflow graph to running a single assistant-process execution.
package execengine

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/mdforge/mdforge/internal/agentdef"
	"github.com/mdforge/mdforge/internal/logstream"
	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/outputparser"
	"github.com/mdforge/mdforge/internal/procutil"
	"github.com/mdforge/mdforge/internal/storage"
	"github.com/mdforge/mdforge/internal/supervisor"
)

// pollInterval is how often ExecuteSync and WaitForHandle re-check the log
// file for a terminal result line. Kept short since both callers are
// already blocked waiting on it.
const pollInterval = 150 * time.Millisecond

// Config is one execution request.
type Config struct {
	AgentName               string
	PromptTemplate          string
	Vars                    map[string]string
	OutputTags              []string
	InjectOutputInstruction bool

	DocID    *int64
	DocTitle string

	WorkingDir  string
	ScratchRoot string
	LogsRoot    string

	Timeout         time.Duration
	AllowedTools    []string
	Model           string
	AssistantBinary string
	Verbose         bool

	CascadeRunID *int64
	Env          []string

	// WrapperPath overrides the mdforge-wrapper binary location; tests use
	// this to substitute a fake wrapper script. Production callers leave it
	// empty so Supervisor resolves the installed wrapper.
	WrapperPath string
}

// Result is ExecuteSync's outcome.
type Result struct {
	ExecutionID int64
	Success     bool
	LogFile     string
	Stdout      string
	// ResultText is the terminal result line's "result" field — the
	// assistant's own textual summary — when one was found. Callers that
	// want the produced artifact's text (e.g. cascade's child document
	// content) should prefer this over Stdout, which also contains the
	// raw JSON-lines transcript.
	ResultText string
	ExitCode   int
	DocID      *int64
	PRUrl      string
	Tokens     outputparser.TokenUsage
	Duration   time.Duration
	Err        error
}

// DetachedHandle is ExecuteDetached's outcome.
type DetachedHandle struct {
	ExecutionID int64
	LogFile     string
	PID         int
	// AllowedTools carries the spawning Config's allowlist through to
	// finalize, so the post-completion tool-use audit has something to
	// check invocations against without re-threading the original Config.
	AllowedTools []string
}

// Engine composes the Supervisor, the Execution Record Store, and the Log
// Stream Manager.
type Engine struct {
	execStore storage.ExecutionRecordStore
	streams   *logstream.Manager
	log       *obslog.Logger
}

// New constructs an Engine.
func New(execStore storage.ExecutionRecordStore, streams *logstream.Manager, log *obslog.Logger) *Engine {
	return &Engine{execStore: execStore, streams: streams, log: log.With("component", "execengine")}
}

// newLogFileName produces a collision-free, lexically-sortable log file
// name: a ULID carries both a millisecond timestamp and 80 bits of
// randomness, the same shape used elsewhere in this codebase for
// correlation ids.
func newLogFileName() string {
	return ulid.Make().String() + ".log"
}

func (e *Engine) logFilePath(logsRoot string) string {
	return filepath.Join(logsRoot, newLogFileName())
}

// ExecuteDetached runs the same pre-flight checks as ExecuteSync, spawns the
// subprocess, and returns immediately after recording its pid.
func (e *Engine) ExecuteDetached(cfg Config) (DetachedHandle, error) {
	if err := supervisor.ValidateEnvironment(cfg.AssistantBinary); err != nil {
		return DetachedHandle{}, err
	}

	prompt := BuildPrompt(cfg.PromptTemplate, cfg.Vars, cfg.OutputTags, cfg.InjectOutputInstruction)
	cmd := BuildAssistantCommand(cfg.AssistantBinary, prompt, cfg.Model, cfg.AllowedTools, cfg.Verbose)
	logFile := e.logFilePath(cfg.LogsRoot)

	workingDir := cfg.WorkingDir
	if workingDir == "" && cfg.ScratchRoot != "" {
		workingDir = filepath.Join(cfg.ScratchRoot, scratchDirName())
		if err := os.MkdirAll(workingDir, 0o755); err != nil {
			return DetachedHandle{}, fmt.Errorf("create scratch dir: %w", err)
		}
	}

	executionID, err := e.execStore.Create(cfg.DocID, cfg.DocTitle, logFile, workingDir)
	if err != nil {
		return DetachedHandle{}, fmt.Errorf("%w: %v", mdferrors.ErrSpawnFailed, err)
	}
	if cfg.CascadeRunID != nil {
		if err := e.execStore.SetCascadeRunID(executionID, *cfg.CascadeRunID); err != nil {
			e.log.Warn("failed setting cascade_run_id on execution", "execution_id", executionID, "error", err)
		}
	}

	if e.streams != nil {
		if _, err := e.streams.OpenFor(executionID, logFile, true); err != nil {
			e.log.Warn("failed opening log stream", "execution_id", executionID, "error", err)
		}
	}

	pid, err := supervisor.SpawnDetached(supervisor.Config{
		ExecutionID: executionID,
		Cmd:         cmd,
		LogFile:     logFile,
		WorkingDir:  workingDir,
		Env:         cfg.Env,
		WrapperPath: cfg.WrapperPath,
	}, e.log)
	if err != nil {
		_ = e.execStore.SetStatus(executionID, storage.ExecutionFailed, intPtr(-1))
		return DetachedHandle{}, fmt.Errorf("%w: %v", mdferrors.ErrSpawnFailed, err)
	}
	if err := e.execStore.SetPID(executionID, pid); err != nil {
		e.log.Warn("failed recording pid", "execution_id", executionID, "error", err)
	}

	return DetachedHandle{ExecutionID: executionID, LogFile: logFile, PID: pid, AllowedTools: cfg.AllowedTools}, nil
}

// ExecuteSync runs ExecuteDetached then blocks, polling the log file for a
// terminal result line, up to cfg.Timeout.
func (e *Engine) ExecuteSync(cfg Config) (Result, error) {
	started := time.Now()
	handle, err := e.ExecuteDetached(cfg)
	if err != nil {
		return Result{Success: false, Err: err}, err
	}

	outcome := e.waitForTerminal(handle, cfg.Timeout)
	outcome.Duration = time.Since(started)
	return outcome, outcome.Err
}

type terminalLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// findTerminalLine scans content for the first line that decodes as a
// type=="result" JSON object, the assistant's documented terminal event.
func findTerminalLine(content []byte) (terminalLine, bool) {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var parsed terminalLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed.Type == "result" {
			return parsed, true
		}
	}
	return terminalLine{}, false
}

// WaitForHandle blocks on an already-detached execution until it reaches a
// terminal state or timeout elapses. It is the completion-monitor half of
// ExecuteDetached, exposed so callers that need to launch-then-watch (the
// Cascade Engine's non-sync path) don't have to duplicate the polling loop.
func (e *Engine) WaitForHandle(handle DetachedHandle, timeout time.Duration) Result {
	started := time.Now()
	res := e.waitForTerminal(handle, timeout)
	res.Duration = time.Since(started)
	return res
}

func (e *Engine) waitForTerminal(handle DetachedHandle, timeout time.Duration) Result {
	deadline := time.Now().Add(timeout)
	var sawDeadProcess time.Time

	for {
		content, _ := os.ReadFile(handle.LogFile)
		if line, ok := findTerminalLine(content); ok {
			return e.finalize(handle, content, line.IsError, 0, line.Result)
		}

		if !procutil.PIDAlive(handle.PID) {
			if sawDeadProcess.IsZero() {
				sawDeadProcess = time.Now()
			} else if time.Since(sawDeadProcess) > pollInterval {
				// Process is gone and never produced a terminal line: treat
				// as a child error rather than waiting out the full timeout.
				content, _ := os.ReadFile(handle.LogFile)
				return e.finalize(handle, content, true, 1, "")
			}
		} else {
			sawDeadProcess = time.Time{}
		}

		if time.Now().After(deadline) {
			_ = procutil.KillPID(handle.PID)
			content, _ := os.ReadFile(handle.LogFile)
			res := e.finalize(handle, content, true, -1, "")
			res.Err = fmt.Errorf("%w: execution %d exceeded %s", mdferrors.ErrTimeout, handle.ExecutionID, timeout)
			return res
		}

		time.Sleep(pollInterval)
	}
}

// auditToolUse logs a warning for every tool the subprocess actually
// invoked that falls outside handle.AllowedTools. This is advisory, not
// preventive: the subprocess is an opaque, unsandboxed binary (spec §1's
// Non-goals exclude sandboxing), so the allowlist can only be checked
// after the fact against what the log says was used. A handle with an
// empty AllowedTools list is not audited at all.
func (e *Engine) auditToolUse(handle DetachedHandle, content []byte) {
	if len(handle.AllowedTools) == 0 {
		return
	}
	for _, tool := range outputparser.ExtractToolInvocations(string(content)) {
		if !agentdef.ToolAllowed(handle.AllowedTools, tool) {
			e.log.Warn("tool invocation outside agent allowlist",
				"execution_id", handle.ExecutionID, "tool", tool)
		}
	}
}

// finalize records the terminal status and builds the Result, parsing the
// log for a doc id, PR URL, and token usage regardless of success (a
// failing run may still have saved partial output worth recovering).
func (e *Engine) finalize(handle DetachedHandle, content []byte, isError bool, exitCodeOnError int, resultText string) Result {
	status := storage.ExecutionCompleted
	exitCode := 0
	if isError {
		status = storage.ExecutionFailed
		exitCode = exitCodeOnError
		if exitCode == 0 {
			exitCode = 1
		}
	}

	if err := e.execStore.SetStatus(handle.ExecutionID, status, &exitCode); err != nil {
		e.log.Warn("failed recording terminal status", "execution_id", handle.ExecutionID, "error", err)
	}

	sha := blake3Hex(content)
	if err := e.execStore.SetLogContentSHA(handle.ExecutionID, sha); err != nil {
		e.log.Warn("failed recording log content hash", "execution_id", handle.ExecutionID, "error", err)
	}

	docID, docFound := outputparser.ExtractOutputDocID(string(content))
	prURL := outputparser.ExtractPRURL(string(content))
	tokens := outputparser.ExtractTokenUsageDetailed(string(content))
	e.auditToolUse(handle, content)

	var docIDPtr *int64
	if docFound {
		docIDPtr = &docID
	}

	return Result{
		ExecutionID: handle.ExecutionID,
		Success:     !isError,
		LogFile:     handle.LogFile,
		Stdout:      string(content),
		ResultText:  resultText,
		ExitCode:    exitCode,
		DocID:       docIDPtr,
		PRUrl:       prURL,
		Tokens:      tokens,
	}
}

func blake3Hex(content []byte) string {
	h := blake3.Sum256(content)
	return hex.EncodeToString(h[:])
}

func intPtr(v int) *int { return &v }
