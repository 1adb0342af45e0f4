// Package zombie periodically reconciles Execution Records that claim to
// still be running against the operating system's actual process table,
// closing out any whose process died without the wrapper's stop marker
// ever landing — e.g. the machine rebooted, or something sent SIGKILL to
// the wrapper itself. Grounded on original_source/emdx/models/executions.py's
// is_zombie property (os.kill(pid, 0)), ported via internal/procutil's
// signal-0 liveness probe.
package zombie

import (
	"context"
	"time"

	"github.com/mdforge/mdforge/internal/obslog"
	"github.com/mdforge/mdforge/internal/outputparser"
	"github.com/mdforge/mdforge/internal/procutil"
	"github.com/mdforge/mdforge/internal/storage"
)

// Reconciler scans running Execution Records on a fixed interval.
type Reconciler struct {
	store    storage.ExecutionRecordStore
	interval time.Duration
	grace    time.Duration
	log      *obslog.Logger
}

// New constructs a Reconciler. interval is the scan cadence, typically a
// few seconds; grace is how long a record may have no PID recorded before
// being declared a zombie, absorbing the window between a record being
// created and SetPID landing. A record whose recorded PID is dead gets no
// grace.
func New(store storage.ExecutionRecordStore, interval, grace time.Duration, log *obslog.Logger) *Reconciler {
	return &Reconciler{store: store, interval: interval, grace: grace, log: log.With("component", "zombie-reconciler")}
}

// Run blocks, scanning every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce()
		}
	}
}

// scanOnce inspects every running record once. Errors from the store are
// logged and otherwise ignored: a failed scan this tick is recovered by the
// next one.
func (r *Reconciler) scanOnce() {
	rows, err := r.store.ListRunning()
	if err != nil {
		r.log.Warn("failed listing running executions", "error", err)
		return
	}
	for _, row := range rows {
		r.reconcileOne(row)
	}
}

func (r *Reconciler) reconcileOne(row storage.ExecutionRow) {
	if row.PID == nil {
		if time.Since(row.StartedAt) < r.grace {
			return
		}
		r.markZombie(row, "no pid recorded within grace window")
		return
	}

	if procutil.PIDAlive(*row.PID) {
		return
	}

	r.markZombie(row, "process not found in process table")
}

// markZombie closes out a record whose process is gone without ever having
// reported a terminal status, per spec §7's Zombie error kind: exit_code is
// forced to -1 rather than left unset, since the output parser is still
// given a chance to recover whatever the process managed to write to its
// log before dying.
func (r *Reconciler) markZombie(row storage.ExecutionRow, reason string) {
	usage := outputparser.ExtractTokenUsageDetailedFromFile(row.LogFile, r.log)
	r.log.Warn("reconciling zombie execution",
		"execution_id", row.ID,
		"pid", derefPID(row.PID),
		"reason", reason,
		"tokens_recovered", usage.Total,
	)
	exitCode := -1
	if err := r.store.SetStatus(row.ID, storage.ExecutionFailed, &exitCode); err != nil {
		r.log.Error("failed marking zombie execution as failed", "execution_id", row.ID, "error", err)
	}
}

func derefPID(pid *int) int {
	if pid == nil {
		return 0
	}
	return *pid
}
