package harness

import (
	"github.com/roach88/kdl/internal/ir"
	"github.com/roach88/kdl/internal/store"
)

// TraceEvent is one verb dispatch as read back from the trace store.
type TraceEvent struct {
	Cycle   int64
	Seq     int64
	Rule    ir.RuleID
	Context string
	Verb    string
	Params  []ir.Value
	Default bool
}

func traceEvent(f store.Firing) TraceEvent {
	return TraceEvent{
		Cycle:   f.Cycle,
		Seq:     f.Seq,
		Rule:    f.Rule,
		Context: f.Context,
		Verb:    f.Verb,
		Params:  f.Params,
		Default: f.Default,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion held and the allocator balanced.
	Pass bool

	// RunID is the ID the run was recorded under.
	RunID string

	// Cycles is the number of cycles that completed.
	Cycles int64

	// Trace contains every firing in dispatch order.
	Trace []TraceEvent

	// Vars is the variable snapshot taken after the last cycle.
	Vars map[string]ir.Value

	// Output holds the lines written by print and echo verbs.
	Output []string

	// RunError is the error that stopped execution, if any. It is part
	// of the outcome, not a harness failure.
	RunError error

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Vars:   make(map[string]ir.Value),
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Verbs returns the verb names of the trace in order.
func (r *Result) Verbs() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.Verb
	}
	return out
}
