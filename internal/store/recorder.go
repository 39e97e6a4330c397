package store

import (
	"context"

	"github.com/roach88/kdl/internal/engine"
)

// Recorder is an engine.Tracer that writes every firing and cycle of one
// run to a Store. Write errors propagate to the machine, which faults with
// TRACE_FAILED.
type Recorder struct {
	ctx   context.Context
	store *Store
	runID string
}

// NewRecorder returns a recorder for an already begun run.
func NewRecorder(ctx context.Context, s *Store, runID string) *Recorder {
	return &Recorder{ctx: ctx, store: s, runID: runID}
}

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) Fired(f engine.Firing) error {
	return r.store.WriteFiring(r.ctx, Firing{
		RunID:   r.runID,
		Cycle:   f.Cycle,
		Seq:     f.Seq,
		Rule:    f.Rule,
		Context: f.Context,
		Verb:    f.Verb,
		Params:  f.Params,
		Default: f.Default,
	})
}

func (r *Recorder) CycleComplete(cycle int64, active int) error {
	return r.store.WriteCycle(r.ctx, Cycle{RunID: r.runID, Cycle: cycle, Active: active})
}
