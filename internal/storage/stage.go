package storage

import "fmt"

// Stage is one of the five fixed cascade pipeline positions.
type Stage string

const (
	StageIdea     Stage = "idea"
	StagePrompt   Stage = "prompt"
	StageAnalyzed Stage = "analyzed"
	StagePlanned  Stage = "planned"
	StageDone     Stage = "done"
)

// stageOrder is the fixed pipeline order, idea first.
var stageOrder = []Stage{StageIdea, StagePrompt, StageAnalyzed, StagePlanned, StageDone}

// ParseStage validates s against the fixed stage list.
func ParseStage(s string) (Stage, error) {
	for _, st := range stageOrder {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid stage %q", s)
}

// Index returns the stage's position in the fixed pipeline order, or -1.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the next stage in the pipeline. Calling Next on StageDone
// returns ("", false): done is terminal and has no successor.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx >= len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[idx+1], true
}

// Before reports whether s is strictly earlier than other in pipeline order.
func (s Stage) Before(other Stage) bool {
	return s.Index() >= 0 && other.Index() >= 0 && s.Index() < other.Index()
}

// Terminal reports whether s is the pipeline's final stage.
func (s Stage) Terminal() bool { return s == StageDone }

// Stages returns the fixed ordered stage list.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}
