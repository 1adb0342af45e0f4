package cascade

import (
	"fmt"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/storage"
)

// Advance moves a document directly to a stage, bypassing execution. A nil
// to defaults to the document's next stage. Advancing a document already
// at done is a no-op, and is idempotent under repeated calls; an explicit
// to past done is refused.
func (e *Engine) Advance(id int64, to *storage.Stage) error {
	doc, err := e.docs.Get(id)
	if err != nil {
		return err
	}
	if doc.Stage != nil && doc.Stage.Terminal() {
		return nil
	}

	target := to
	if target == nil {
		if doc.Stage == nil {
			first := storage.Stages()[0]
			target = &first
		} else {
			next, ok := doc.Stage.Next()
			if !ok {
				return nil
			}
			target = &next
		}
	}
	if _, err := storage.ParseStage(string(*target)); err != nil {
		return fmt.Errorf("%w: %v", mdferrors.ErrInvalidState, err)
	}
	if to != nil && doc.Stage != nil && *target != *doc.Stage && !doc.Stage.Before(*target) {
		return fmt.Errorf("%w: cannot advance document %d from %q backward to %q", mdferrors.ErrInvalidState, id, *doc.Stage, *target)
	}

	return e.docs.SetStage(id, target)
}

// Remove soft-deletes a document, taking it out of the pipeline entirely
// (distinct from Advance(id, done), which is a normal terminal stage).
func (e *Engine) Remove(id int64) error {
	return e.docs.Delete(id)
}

// StageStatus summarizes one stage's queue depth for `cascade status`.
type StageStatus struct {
	Stage storage.Stage
	Count int
}

// Status returns the document count at each fixed stage.
func (e *Engine) Status() ([]StageStatus, error) {
	out := make([]StageStatus, 0, len(storage.Stages()))
	for _, stage := range storage.Stages() {
		docs, err := e.docs.ListAtStage(stage, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, StageStatus{Stage: stage, Count: len(docs)})
	}
	return out, nil
}

// Show lists every document currently at stage, oldest first.
func (e *Engine) Show(stage storage.Stage) ([]storage.Document, error) {
	return e.docs.ListAtStage(stage, 0)
}
