package engine

import "github.com/roach88/kdl/internal/ir"

// Firing records one verb dispatch.
type Firing struct {
	Cycle   int64
	Seq     int64 // machine-wide dispatch counter, starting at 1
	Rule    ir.RuleID
	Context string
	Verb    string
	Params  []ir.Value

	// Default is set when the default verb answered an unregistered name.
	Default bool
}

// Tracer observes execution. An error from either method is fatal to the
// current Run, reported as TRACE_FAILED.
type Tracer interface {
	Fired(f Firing) error
	CycleComplete(cycle int64, active int) error
}

// FiringLog is an in-memory Tracer.
type FiringLog struct {
	Firings []Firing
	Cycles  []int64
}

func (l *FiringLog) Fired(f Firing) error {
	l.Firings = append(l.Firings, f)
	return nil
}

func (l *FiringLog) CycleComplete(cycle int64, _ int) error {
	l.Cycles = append(l.Cycles, cycle)
	return nil
}

// Verbs returns the verb names of all firings in order.
func (l *FiringLog) Verbs() []string {
	out := make([]string, len(l.Firings))
	for i, f := range l.Firings {
		out[i] = f.Verb
	}
	return out
}

// tracers fans out to several tracers in order.
type tracers []Tracer

func (ts tracers) Fired(f Firing) error {
	for _, t := range ts {
		if err := t.Fired(f); err != nil {
			return err
		}
	}
	return nil
}

func (ts tracers) CycleComplete(cycle int64, active int) error {
	for _, t := range ts {
		if err := t.CycleComplete(cycle, active); err != nil {
			return err
		}
	}
	return nil
}

// MultiTracer combines tracers; each sees every event in argument order.
func MultiTracer(ts ...Tracer) Tracer {
	return tracers(ts)
}
