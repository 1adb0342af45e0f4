package queryapi

import (
	"net/http"

	"github.com/mdforge/mdforge/internal/storage"
)

// PrimeSummary is a read-only session-context aggregation, ported from
// prime.py: ready-to-process documents per stage, running/failed execution
// counts, and the most recent cascade run.
type PrimeSummary struct {
	ReadyByStage     map[storage.Stage]int `json:"ready_by_stage"`
	RunningCount     int                   `json:"running_count"`
	RecentFailures   int                   `json:"recent_failures"`
	MostRecentRun    *storage.CascadeRunRow `json:"most_recent_run,omitempty"`
}

// BuildPrimeSummary aggregates the current session context from the
// Document, Execution Record, and Cascade Run stores. Shared by the CLI's
// `prime` command and the HTTP `/prime` route so both report identically.
func BuildPrimeSummary(docs storage.DocumentStore, execs storage.ExecutionRecordStore, runs storage.CascadeRunStore) (PrimeSummary, error) {
	summary := PrimeSummary{ReadyByStage: map[storage.Stage]int{}}

	for _, stage := range storage.Stages() {
		if stage.Terminal() {
			continue
		}
		atStage, err := docs.ListAtStage(stage, 0)
		if err != nil {
			return PrimeSummary{}, err
		}
		summary.ReadyByStage[stage] = len(atStage)
	}

	running, err := execs.ListRunning()
	if err != nil {
		return PrimeSummary{}, err
	}
	summary.RunningCount = len(running)

	recent, err := execs.ListRecent(20)
	if err != nil {
		return PrimeSummary{}, err
	}
	for _, e := range recent {
		if storage.ExecutionStatus(e.Status) == storage.ExecutionFailed {
			summary.RecentFailures++
		}
	}

	runRows, err := runs.ListRecent(1)
	if err != nil {
		return PrimeSummary{}, err
	}
	if len(runRows) > 0 {
		row := runRows[0]
		summary.MostRecentRun = &row
	}

	return summary, nil
}

func (s *Server) handlePrime(w http.ResponseWriter, r *http.Request) {
	summary, err := BuildPrimeSummary(s.docs, s.execs, s.runs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
