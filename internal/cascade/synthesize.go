package cascade

import (
	"fmt"
	"strings"

	"github.com/mdforge/mdforge/internal/mdferrors"
	"github.com/mdforge/mdforge/internal/storage"
)

// Synthesize combines every document at stage (or, if sourceIDs is
// non-empty, exactly those documents) into one new document at the same
// stage. When keep is false the sources are fast-forwarded to done so they
// no longer compete for processing.
func (e *Engine) Synthesize(stage storage.Stage, sourceIDs []int64, keep bool) (int64, error) {
	sources, err := e.resolveSynthesisSources(stage, sourceIDs)
	if err != nil {
		return 0, err
	}
	if len(sources) == 1 {
		return 0, fmt.Errorf("%w: synthesize requires at least 2 source documents, got 1", mdferrors.ErrInvalidState)
	}
	if len(sources) == 0 {
		return 0, fmt.Errorf("%w: no documents at stage %q to synthesize", mdferrors.ErrInvalidState, stage)
	}

	var sb strings.Builder
	titles := make([]string, 0, len(sources))
	for _, src := range sources {
		fmt.Fprintf(&sb, "## Document #%d\n\n%s\n\n", src.ID, src.Content)
		titles = append(titles, src.Title)
	}

	newID, err := e.docs.Create("Synthesis: "+strings.Join(titles, " + "), sb.String(), "", nil)
	if err != nil {
		return 0, err
	}
	if err := e.docs.SetStage(newID, &stage); err != nil {
		return 0, err
	}

	if !keep {
		done := storage.StageDone
		for _, src := range sources {
			if err := e.docs.SetStage(src.ID, &done); err != nil {
				e.log.Warn("failed fast-forwarding synthesis source to done", "doc_id", src.ID, "error", err)
			}
		}
	}

	return newID, nil
}

func (e *Engine) resolveSynthesisSources(stage storage.Stage, sourceIDs []int64) ([]storage.Document, error) {
	if len(sourceIDs) == 0 {
		return e.docs.ListAtStage(stage, 0)
	}
	out := make([]storage.Document, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		doc, err := e.docs.Get(id)
		if err != nil {
			return nil, err
		}
		if doc.Stage == nil || *doc.Stage != stage {
			return nil, fmt.Errorf("%w: document %d is not at stage %q", mdferrors.ErrInvalidState, id, stage)
		}
		out = append(out, doc)
	}
	return out, nil
}
