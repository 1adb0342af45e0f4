package cascade

import (
	"fmt"
	"strings"

	"github.com/mdforge/mdforge/internal/execengine"
	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/storage"
)

// ProcessResult is Process's outcome.
type ProcessResult struct {
	DocID        int64
	ExecutionID  int64
	ChildDocID   *int64 // set when a child document was created
	AdvancedInPlace bool // set when the original document advanced without a child
	Success      bool
	PRUrl        string
	Err          error
}

// selectDocument resolves which document Process acts on: the explicit id
// (which must actually be at stage) or the oldest document at stage.
func (e *Engine) selectDocument(stage storage.Stage, docID *int64) (storage.Document, bool, error) {
	if docID != nil {
		doc, err := e.docs.Get(*docID)
		if err != nil {
			return storage.Document{}, false, err
		}
		if doc.Stage == nil || *doc.Stage != stage {
			return storage.Document{}, false, fmt.Errorf("%w: document %d is not at stage %q", mdferrors.ErrInvalidState, *docID, stage)
		}
		return doc, true, nil
	}

	docs, err := e.docs.ListAtStage(stage, 1)
	if err != nil {
		return storage.Document{}, false, err
	}
	if len(docs) == 0 {
		return storage.Document{}, false, nil
	}
	return docs[0], true, nil
}

// Process runs one document through one stage transition. cascadeRunID is
// nil for a standalone process() call outside any run.
func (e *Engine) Process(stage storage.Stage, docID *int64, sync bool) (ProcessResult, error) {
	return e.ProcessInRun(stage, docID, sync, nil)
}

// ProcessInRun is Process with an explicit owning cascade run, so every
// Execution Record it produces carries that run's id. The detached
// (!sync) path delegates to ProcessDetachedInRun so both entry points spawn
// the same completion monitor — without it a detached execution's success
// would never create its child document or advance the cascade run.
func (e *Engine) ProcessInRun(stage storage.Stage, docID *int64, sync bool, cascadeRunID *int64) (ProcessResult, error) {
	if !sync {
		return e.ProcessDetachedInRun(stage, docID, cascadeRunID)
	}

	doc, found, err := e.selectDocument(stage, docID)
	if err != nil {
		return ProcessResult{}, err
	}
	if !found {
		return ProcessResult{}, nil
	}

	nextStage, hasNext := stage.Next()
	if !hasNext {
		return ProcessResult{}, fmt.Errorf("%w: stage %q is terminal", mdferrors.ErrInvalidState, stage)
	}

	prompt, err := e.renderPrompt(stage, doc.Content)
	if err != nil {
		return ProcessResult{}, err
	}

	cfg := execengine.Config{
		PromptTemplate:          prompt,
		DocID:                   &doc.ID,
		DocTitle:                doc.Title,
		Timeout:                 e.timeoutFor(stage),
		AllowedTools:            e.allowedTools,
		Model:                   e.model,
		AssistantBinary:         e.assistantBinary,
		LogsRoot:                e.logsRoot,
		ScratchRoot:             e.scratchRoot,
		CascadeRunID:            cascadeRunID,
		InjectOutputInstruction: false,
		WrapperPath:             e.wrapperPath,
	}

	result, err := e.exec.ExecuteSync(cfg)
	res := ProcessResult{DocID: doc.ID, ExecutionID: result.ExecutionID, Success: result.Success}
	if err != nil || !result.Success {
		res.Err = err
		return res, err
	}

	return e.applySuccess(doc, stage, nextStage, result)
}

// applySuccess applies a successful execution's result to the pipeline:
// non-empty output spawns a child document at nextStage and marks the
// parent done; empty output advances the parent itself.
func (e *Engine) applySuccess(doc storage.Document, stage, nextStage storage.Stage, result execengine.Result) (ProcessResult, error) {
	res := ProcessResult{DocID: doc.ID, ExecutionID: result.ExecutionID, Success: true, PRUrl: result.PRUrl}

	if strings.TrimSpace(result.ResultText) == "" {
		if err := e.docs.SetStage(doc.ID, &nextStage); err != nil {
			res.Err = err
			return res, err
		}
		res.AdvancedInPlace = true
		return res, nil
	}

	childTitle := fmt.Sprintf("%s [%s→%s]", doc.Title, stage, nextStage)
	childID, err := e.docs.Create(childTitle, outputText(result), doc.Project, &doc.ID)
	if err != nil {
		res.Err = err
		return res, err
	}
	if err := e.docs.SetStage(childID, &nextStage); err != nil {
		res.Err = err
		return res, err
	}
	doneStage := storage.StageDone
	if err := e.docs.SetStage(doc.ID, &doneStage); err != nil {
		res.Err = err
		return res, err
	}

	if stage == implTimeoutStage && result.PRUrl != "" {
		_ = e.docs.SetPRUrl(doc.ID, result.PRUrl)
		_ = e.docs.SetPRUrl(childID, result.PRUrl)
	}

	res.ChildDocID = &childID
	return res, nil
}

// outputText is the assistant's own textual summary from the terminal
// result line — what becomes the child document's content.
func outputText(result execengine.Result) string {
	return result.ResultText
}
