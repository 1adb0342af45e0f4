package cascade

import "github.com/mdforge/mdforge/internal/storage"

// StartRun creates the initial document at startStage, opens a Cascade Run
// row tracking it through to stopStage, and drives the cascade with the
// same auto semantics as Add. It is Add's run-tracked counterpart: every
// Execution Record produced while driving a run needs to carry that run's
// id, which bare Add (cascadeRunID == nil) does not provide.
func (e *Engine) StartRun(content, title string, startStage, stopStage storage.Stage, sync bool) (runID int64, docID int64, err error) {
	if title == "" {
		title = deriveTitle(content)
	}
	docID, err = e.docs.Create(title, content, "", nil)
	if err != nil {
		return 0, 0, err
	}
	if err := e.docs.SetStage(docID, &startStage); err != nil {
		return 0, 0, err
	}

	runID, err = e.runs.Create(docID, startStage, stopStage)
	if err != nil {
		return 0, docID, err
	}

	if sync {
		stage := startStage
		for {
			if stage == stopStage || stage.Terminal() {
				_ = e.runs.Complete(runID, storage.CascadeCompleted, "")
				return runID, docID, nil
			}
			res, err := e.ProcessInRun(stage, &docID, true, &runID)
			if err != nil || !res.Success {
				_ = e.runs.Complete(runID, storage.CascadeFailed, errString(err))
				return runID, docID, err
			}

			nextStage, _ := stage.Next()
			if res.ChildDocID != nil {
				docID = *res.ChildDocID
			}
			if err := e.runs.AdvanceStage(runID, nextStage, docID); err != nil {
				e.log.Warn("failed advancing cascade run stage", "cascade_run_id", runID, "error", err)
			}
			if res.PRUrl != "" {
				_ = e.runs.SetPRUrl(runID, res.PRUrl)
			}
			stage = nextStage
		}
	}

	if _, err := e.ProcessDetachedInRun(startStage, &docID, &runID); err != nil {
		_ = e.runs.Complete(runID, storage.CascadeFailed, err.Error())
		return runID, docID, err
	}
	return runID, docID, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
