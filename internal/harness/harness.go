package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/kdl/internal/engine"
	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
	"github.com/roach88/kdl/internal/store"
	"github.com/roach88/kdl/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a real machine with a deterministic run ID,
// an in-memory trace store and a counting allocator.
type Harness struct {
	store  *store.Store
	alloc  *engine.CountingAllocator
	log    *engine.FiringLog
	out    bytes.Buffer
	runID  string
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and a machine recording into it
// 2. Register host verbs, declared echo verbs, the default verb and vars
// 3. Load the program and run the requested cycles, stopping on error
// 4. Close the machine and check the allocator balanced
// 5. Read the trace back from the store and evaluate assertions
//
// A parse or runtime error is part of the result (RunError), checked by
// run_error assertions. The returned error is reserved for harness
// failures such as a store error.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	var gen store.RunIDGenerator = testutil.NewFixedRunIDGenerator()
	if scenario.RunID != "" {
		gen = testutil.NewFixedRunIDGenerator(scenario.RunID)
	}

	h := &Harness{
		store:  st,
		alloc:  &engine.CountingAllocator{},
		log:    &engine.FiringLog{},
		runID:  gen.Generate(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()
	result.RunID = h.runID

	if err := h.execute(ctx, scenario, result); err != nil {
		return nil, err
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute drives the machine and records the run.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, result *Result) error {
	rec := store.NewRecorder(ctx, h.store, h.runID)
	m, err := engine.New(
		engine.WithAllocator(h.alloc),
		engine.WithLogger(h.logger),
		engine.WithTracer(engine.MultiTracer(h.log, rec)),
		engine.WithMaxActiveRules(scenario.MaxActiveRules),
	)
	if err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}

	if err := h.setup(m, scenario); err != nil {
		m.Close()
		return err
	}

	if err := m.Load(scenario.Program); err != nil {
		result.RunError = err
		result.Vars = m.Snapshot()
		m.Close()
		h.checkLeaks(result)
		return nil
	}

	prog := m.Program()
	hash, err := ir.ProgramHash(prog)
	if err != nil {
		m.Close()
		return fmt.Errorf("failed to hash program: %w", err)
	}
	if err := h.store.BeginRun(ctx, store.Run{
		ID:            h.runID,
		ProgramHash:   hash,
		Source:        scenario.Program,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}); err != nil {
		m.Close()
		return err
	}

	for i := 0; i < scenario.Cycles; i++ {
		if err := m.Run(); err != nil {
			result.RunError = err
			break
		}
	}

	result.Cycles = m.Cycle()
	if result.RunError != nil {
		// The failed cycle started but did not complete.
		result.Cycles--
	}
	result.Vars = m.Snapshot()

	if err := h.store.FinishRun(ctx, h.runID, result.Cycles, result.Vars, result.RunError); err != nil {
		m.Close()
		return err
	}

	h.logger.Info("scenario executed",
		"run_id", h.runID,
		"cycles", result.Cycles,
		"firings", len(h.log.Firings),
		"error", result.RunError,
	)

	if err := m.Close(); err != nil {
		return fmt.Errorf("failed to close machine: %w", err)
	}
	h.checkLeaks(result)
	return nil
}

// setup installs verbs and seeds variables.
func (h *Harness) setup(m *engine.Machine, scenario *Scenario) error {
	if err := hostlib.Register(m, &h.out); err != nil {
		return err
	}

	for name, decl := range scenario.Verbs {
		kinds, err := decl.kinds()
		if err != nil {
			return fmt.Errorf("verb %q: %w", name, err)
		}
		if err := m.AddVerb(name, hostlib.Echo(&h.out, kinds, decl.Validate)); err != nil {
			return fmt.Errorf("verb %q: %w", name, err)
		}
	}

	def, ok, err := hostlib.DefaultVerb(scenario.DefaultVerb, h.logger)
	if err != nil {
		return err
	}
	if ok {
		if err := m.AddDefaultVerb(def); err != nil {
			return err
		}
	}

	for name, raw := range scenario.Vars {
		v, err := convertToValue(raw)
		if err != nil {
			return fmt.Errorf("var %q: %w", name, err)
		}
		if err := m.Set(name, v); err != nil {
			return fmt.Errorf("var %q: %w", name, err)
		}
	}
	return nil
}

func (h *Harness) checkLeaks(result *Result) {
	if err := h.alloc.Leak(); err != nil {
		result.AddError(err.Error())
	}
}

// collect reads the recorded trace back and cross-checks it against the
// firings the machine reported in memory.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	result.Output = splitLines(h.out.String())

	recorded, err := h.store.ReadFirings(ctx, h.runID)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	observed := make([]store.Firing, len(h.log.Firings))
	for i, f := range h.log.Firings {
		observed[i] = store.Firing{
			Cycle:   f.Cycle,
			Seq:     f.Seq,
			Rule:    f.Rule,
			Context: f.Context,
			Verb:    f.Verb,
			Params:  f.Params,
			Default: f.Default,
		}
	}
	if d := store.Diverge(observed, recorded); d != nil {
		result.AddError("recorded trace differs from machine: " + d.String())
	}

	for _, f := range recorded {
		result.Trace = append(result.Trace, traceEvent(f))
	}
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
