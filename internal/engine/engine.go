package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/hashmap"
	"github.com/roach88/kdl/internal/ir"
)

// Machine is the cycle-driven production-rule machine.
//
// The host loads a program, registers verbs and variables, and steps the
// machine with Run. Each Run evaluates every active rule once, in
// activation order, and dispatches the verbs of rules whose guards hold.
//
// Thread-safety model: a Machine is not safe for concurrent use. Verb
// callbacks and watchers run synchronously inside Run and may call back
// into the machine (Get, Set, AddVerb, AddWatcher); their effects are
// visible to later rules in the same cycle. Cycle() may be read from
// another goroutine.
//
// INVARIANTS:
//   - The loaded Program is never mutated
//   - A rule enters the schedule at most once and is never removed
//   - Every live variable Entry holds a non-Nil Value
//   - After a fatal Run error, every later Run returns FAULTED
type Machine struct {
	prog *ir.Program
	src  string

	sched       schedule
	vars        *hashmap.Map[*Entry]
	verbs       *hashmap.Map[*Verb]
	defaultVerb *Verb

	alloc     Allocator
	logger    *slog.Logger
	tracer    Tracer
	quota     *QuotaEnforcer
	parseOpts compiler.Options

	varPrecision  int
	verbPrecision int

	cycles *Clock // cycle number, reset by Load
	seq    *Clock // firing seq, machine-wide

	stack   []ir.Value
	running bool
	fault   error
	closed  bool
}

// New creates a Machine with empty variable and verb tables.
//
// Options can be passed to configure the machine (e.g., WithAllocator).
func New(opts ...Option) (*Machine, error) {
	m := &Machine{
		cycles: NewClock(),
		seq:    NewClock(),
	}
	defaultOptions(m)
	for _, opt := range opts {
		opt(m)
	}

	vars, err := hashmap.New(m.varPrecision, hashmap.WithRelease(func(string, *Entry) {
		m.alloc.Free(ClassEntry, 1)
	}))
	if err != nil {
		return nil, fmt.Errorf("variable table: %w", err)
	}
	verbs, err := hashmap.New(m.verbPrecision, hashmap.WithRelease(func(string, *Verb) {
		m.alloc.Free(ClassVerb, 1)
	}))
	if err != nil {
		return nil, fmt.Errorf("verb table: %w", err)
	}
	m.vars, m.verbs = vars, verbs
	return m, nil
}

func (m *Machine) checkOpen() error {
	if m.closed {
		return newError(ErrCodeClosed, "machine is closed")
	}
	return nil
}

// Load parses src and seeds the schedule with its root rules. A previous
// program, its schedule and any fault are discarded; variables and verbs
// are kept. Parse errors are returned unchanged (see compiler.ParseError).
func (m *Machine) Load(src string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.running {
		return newError(ErrCodeInvariant, "Load called from inside Run")
	}

	prog, err := compiler.Parse(src, m.parseOpts)
	if err != nil {
		m.logger.Debug("load failed", "error", err)
		return err
	}
	return m.LoadProgram(prog, src)
}

// LoadProgram installs an already compiled program. src is used only for
// error positions and may be empty.
func (m *Machine) LoadProgram(prog *ir.Program, src string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.running {
		return newError(ErrCodeInvariant, "Load called from inside Run")
	}

	m.releaseSchedule()
	m.prog, m.src = prog, src
	m.fault = nil
	m.cycles.Reset()
	m.quota.Reset()
	m.sched.reset(len(prog.Rules))

	if err := m.sched.activate(prog.Root, m.admit(0)); err != nil {
		m.releaseSchedule()
		m.prog = nil
		return err
	}
	m.sched.advance()

	m.logger.Debug("machine loaded",
		"rules", len(prog.Rules),
		"root", len(prog.Root),
	)
	return nil
}

// admit returns the activation hook for the given cycle: it enforces the
// active rule quota and accounts one schedule slot per rule.
func (m *Machine) admit(cycle int64) func(ir.RuleID) error {
	return func(id ir.RuleID) error {
		if err := m.quota.Check(cycle); err != nil {
			e := newError(ErrCodeBufferLimit, "too many active rules activating rule %d", id)
			e.Err = err
			return e
		}
		return m.alloc.Alloc(ClassSchedule, 1)
	}
}

// releaseSchedule frees the slots accounted by admit.
func (m *Machine) releaseSchedule() {
	if n := len(m.sched.back); n > 0 {
		m.alloc.Free(ClassSchedule, n)
	}
	m.sched.front = m.sched.front[:0]
	m.sched.back = m.sched.back[:0]
}

// Run advances the machine by one cycle.
//
// Every rule in the current schedule is visited once, in order. A rule
// whose guard holds dispatches its verb and unlocks its child rules for
// the next cycle. A Run always completes its pass unless an error occurs;
// errors are fatal and poison the machine.
func (m *Machine) Run() error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.running {
		return newError(ErrCodeInvariant, "Run called re-entrantly")
	}
	if m.fault != nil {
		e := newError(ErrCodeFaulted, "machine faulted in an earlier cycle")
		e.Err = m.fault
		return e
	}
	if m.prog == nil {
		return newError(ErrCodeNotLoaded, "no program loaded")
	}

	m.running = true
	defer func() { m.running = false }()

	cycle := m.cycles.Tick()
	admit := m.admit(cycle)

	for _, id := range m.sched.front {
		if err := m.step(cycle, id, admit); err != nil {
			return m.poison(m.locate(err, cycle, id))
		}
	}

	m.sched.advance()

	if m.tracer != nil {
		if err := m.tracer.CycleComplete(cycle, m.sched.size()); err != nil {
			e := newError(ErrCodeTraceFailed, "tracer rejected cycle record")
			e.Err = err
			return m.poison(m.locate(e, cycle, -1))
		}
	}

	m.logger.Debug("cycle complete",
		"cycle", cycle,
		"active", m.sched.size(),
	)
	return nil
}

// step evaluates one rule and fires it if its guard holds.
func (m *Machine) step(cycle int64, id ir.RuleID, admit func(ir.RuleID) error) error {
	r := m.prog.Rule(id)

	fire, err := m.guard(r.Guard)
	if err != nil {
		return err
	}
	if !fire {
		return nil
	}

	if r.Action.Verb != "" {
		if err := m.dispatch(cycle, id, &r.Action); err != nil {
			return err
		}
	}

	return m.sched.activate(r.Action.Child, admit)
}

// guard evaluates a rule guard. Empty guards always hold; otherwise the
// result must be an Int, and any non-zero Int holds.
func (m *Machine) guard(c ir.Compute) (bool, error) {
	if len(c) == 0 {
		return true, nil
	}
	v, err := m.doCompute(c)
	if err != nil {
		return false, err
	}
	n, ok := v.(ir.Int)
	if !ok {
		return false, NewTypeMismatch("guard", ir.KindInt, ir.KindOf(v))
	}
	return n != 0, nil
}

func (m *Machine) dispatch(cycle int64, id ir.RuleID, a *ir.Action) error {
	verb, isDefault, err := m.lookupVerb(a.Verb)
	if err != nil {
		return err
	}
	if err := verb.checkArity(a.Verb, len(a.Params)); err != nil {
		return err
	}

	params := make([]ir.Value, len(a.Params))
	for i, c := range a.Params {
		v, err := m.doCompute(c)
		if err != nil {
			return err
		}
		params[i] = v
	}
	if err := verb.checkKinds(a.Verb, params); err != nil {
		return err
	}

	seq := m.seq.Tick()
	m.logger.Debug("rule fired",
		"cycle", cycle,
		"seq", seq,
		"rule", id,
		"verb", a.Verb,
		"context", a.Context,
		"default", isDefault,
	)

	if err := verb.Func(m, a.Context, a.Verb, params); err != nil {
		e := newError(ErrCodeVerbFailed, "verb %q failed", a.Verb)
		e.Verb = a.Verb
		e.Err = err
		return e
	}

	if m.tracer != nil {
		f := Firing{
			Cycle:   cycle,
			Seq:     seq,
			Rule:    id,
			Context: a.Context,
			Verb:    a.Verb,
			Params:  params,
			Default: isDefault,
		}
		if err := m.tracer.Fired(f); err != nil {
			e := newError(ErrCodeTraceFailed, "tracer rejected firing record")
			e.Err = err
			return e
		}
	}
	return nil
}

// locate stamps cycle and rule position onto a RuntimeError, wrapping
// foreign errors as invariant violations.
func (m *Machine) locate(err error, cycle int64, id ir.RuleID) error {
	var re *RuntimeError
	if !errors.As(err, &re) {
		re = newError(ErrCodeInvariant, "unexpected error")
		re.Err = err
	}
	if re.Cycle == 0 {
		re.Cycle = cycle
	}
	if re.Rule < 0 && id >= 0 {
		re.Rule = id
	}
	if re.Rule >= 0 && re.Line == 0 && m.src != "" {
		re.Line, re.Column = compiler.LineCol(m.src, m.prog.Rule(re.Rule).Pos)
	}
	return re
}

func (m *Machine) poison(err error) error {
	m.fault = err
	m.logger.Error("machine faulted",
		"cycle", m.cycles.Now(),
		"error", err,
	)
	return err
}

// Close releases the program, the schedule and both tables, running every
// entry and verb release. The machine cannot be used afterwards.
func (m *Machine) Close() error {
	if m.closed {
		return nil
	}
	if m.running {
		return newError(ErrCodeInvariant, "Close called from inside Run")
	}
	m.releaseSchedule()
	m.sched.release()
	m.vars.Destroy()
	m.verbs.Destroy()
	if m.defaultVerb != nil {
		m.defaultVerb = nil
		m.alloc.Free(ClassVerb, 1)
	}
	m.prog = nil
	m.stack = nil
	m.closed = true
	return nil
}

// Cycle returns the number of the last cycle run (0 before the first).
func (m *Machine) Cycle() int64 {
	return m.cycles.Now()
}

// Active returns a copy of the schedule the next Run will evaluate.
func (m *Machine) Active() []ir.RuleID {
	return append([]ir.RuleID(nil), m.sched.front...)
}

// Program returns the loaded program, or nil. It must not be modified.
func (m *Machine) Program() *ir.Program {
	return m.prog
}

// Fault returns the error that poisoned the machine, or nil.
func (m *Machine) Fault() error {
	return m.fault
}
