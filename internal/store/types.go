package store

import "github.com/roach88/kdl/internal/ir"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunOK      RunStatus = "ok"
	RunFaulted RunStatus = "faulted"
)

// Run is one recorded execution of a program.
type Run struct {
	ID            string
	ProgramHash   string
	Source        string
	EngineVersion string
	IRVersion     string

	Status RunStatus
	Cycles int64  // cycles completed
	Error  string // fault message when Status is RunFaulted

	// Vars is the variable snapshot taken when the run finished.
	Vars map[string]ir.Value
}

// Firing is one recorded verb dispatch.
type Firing struct {
	ID      string // ir.FiringID(RunID, Cycle, Seq, Rule)
	RunID   string
	Cycle   int64
	Seq     int64
	Rule    ir.RuleID
	Context string
	Verb    string
	Params  []ir.Value
	Default bool
}

// Cycle is the end-of-cycle schedule size.
type Cycle struct {
	RunID  string
	Cycle  int64
	Active int
}
