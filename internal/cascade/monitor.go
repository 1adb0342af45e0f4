package cascade

import (
	"github.com/mdforge/mdforge/internal/execengine"
	"github.com/mdforge/mdforge/internal/storage"
)

// watchDetached is the completion monitor for a detached stage execution:
// it blocks (on its own goroutine, so it never blocks the caller that
// spawned the execution) until the execution reaches a terminal state, then
// performs the same child-creation / stage-advance logic as the
// synchronous path. On a zombie (process died, no terminal line)
// WaitForHandle already reports failure, so this path and the Zombie
// Reconciler converge on the same outcome without coordinating directly.
func (e *Engine) watchDetached(doc storage.Document, stage, nextStage storage.Stage, handle execengine.DetachedHandle, cascadeRunID *int64) {
	result := e.exec.WaitForHandle(handle, e.timeoutFor(stage))

	if cascadeRunID != nil {
		defer func() {
			if recovered := recover(); recovered != nil {
				e.log.Error("panic in cascade completion monitor", "cascade_run_id", *cascadeRunID, "panic", recovered)
			}
		}()
	}

	if !result.Success {
		e.log.Warn("detached stage execution failed", "doc_id", doc.ID, "stage", stage, "execution_id", result.ExecutionID)
		if cascadeRunID != nil {
			_ = e.runs.Complete(*cascadeRunID, storage.CascadeFailed, "stage "+string(stage)+" failed")
		}
		return
	}

	res, err := e.applySuccess(doc, stage, nextStage, result)
	if err != nil {
		e.log.Error("failed applying stage success", "doc_id", doc.ID, "stage", stage, "error", err)
		if cascadeRunID != nil {
			_ = e.runs.Complete(*cascadeRunID, storage.CascadeFailed, err.Error())
		}
		return
	}

	if cascadeRunID == nil {
		return
	}

	currentDocID := doc.ID
	if res.ChildDocID != nil {
		currentDocID = *res.ChildDocID
	}
	if err := e.runs.AdvanceStage(*cascadeRunID, nextStage, currentDocID); err != nil {
		e.log.Error("failed advancing cascade run stage", "cascade_run_id", *cascadeRunID, "error", err)
	}
	if res.PRUrl != "" {
		_ = e.runs.SetPRUrl(*cascadeRunID, res.PRUrl)
	}
	if nextStage.Terminal() {
		_ = e.runs.Complete(*cascadeRunID, storage.CascadeCompleted, "")
	}
}

// ProcessDetachedInRun spawns stage's execution for doc and launches its
// completion monitor on a background goroutine, returning as soon as the
// spawn itself succeeds.
func (e *Engine) ProcessDetachedInRun(stage storage.Stage, docID *int64, cascadeRunID *int64) (ProcessResult, error) {
	doc, found, err := e.selectDocument(stage, docID)
	if err != nil {
		return ProcessResult{}, err
	}
	if !found {
		return ProcessResult{}, nil
	}
	nextStage, hasNext := stage.Next()
	if !hasNext {
		return ProcessResult{DocID: doc.ID}, nil
	}

	prompt, err := e.renderPrompt(stage, doc.Content)
	if err != nil {
		return ProcessResult{}, err
	}

	cfg := execengine.Config{
		PromptTemplate:  prompt,
		DocID:           &doc.ID,
		DocTitle:        doc.Title,
		Timeout:         e.timeoutFor(stage),
		AllowedTools:    e.allowedTools,
		Model:           e.model,
		AssistantBinary: e.assistantBinary,
		LogsRoot:        e.logsRoot,
		ScratchRoot:     e.scratchRoot,
		CascadeRunID:    cascadeRunID,
		WrapperPath:     e.wrapperPath,
	}

	handle, err := e.exec.ExecuteDetached(cfg)
	if err != nil {
		return ProcessResult{DocID: doc.ID, Err: err}, err
	}

	go e.watchDetached(doc, stage, nextStage, handle, cascadeRunID)

	return ProcessResult{DocID: doc.ID, ExecutionID: handle.ExecutionID}, nil
}
