package store

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/roach88/kdl/internal/engine"
	"github.com/roach88/kdl/internal/ir"
)

func TestDiverge(t *testing.T) {
	a := createTestFiring("r1", 1, 1, "a", ir.Int(1))
	b := createTestFiring("r1", 1, 2, "b")

	tests := []struct {
		name   string
		want   []Firing
		got    []Firing
		index  int
		reason string
	}{
		{"equal", []Firing{a, b}, []Firing{a, b}, -1, ""},
		{"both empty", nil, nil, -1, ""},
		{"verb", []Firing{a, b}, []Firing{a, func() Firing { f := b; f.Verb = "c"; return f }()}, 1, `verb "b" != "c"`},
		{"params", []Firing{a}, []Firing{func() Firing { f := a; f.Params = []ir.Value{ir.Int(2)}; return f }()}, 0, "params [1] != [2]"},
		{"short", []Firing{a, b}, []Firing{a}, 1, "trace ended early"},
		{"long", []Firing{a}, []Firing{a, b}, 1, "unexpected extra firing"},
		{"run id ignored", []Firing{a}, []Firing{func() Firing { f := a; f.RunID = "r2"; f.ID = "x"; return f }()}, -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diverge(tt.want, tt.got)
			if tt.index < 0 {
				if d != nil {
					t.Errorf("Diverge() = %v, want nil", d)
				}
				return
			}
			if d == nil {
				t.Fatal("Diverge() = nil, want divergence")
			}
			if d.Index != tt.index || d.Reason != tt.reason {
				t.Errorf("Diverge() = %d %q, want %d %q", d.Index, d.Reason, tt.index, tt.reason)
			}
		})
	}
}

// recordRun executes src for n cycles on a fresh machine, recording into s.
func recordRun(t *testing.T, s *Store, runID, src string, n int) {
	t.Helper()
	ctx := context.Background()

	rec := NewRecorder(ctx, s, runID)
	m, err := engine.New(
		engine.WithTracer(rec),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.AddDefaultVerb(engine.Verb{Func: func(*engine.Machine, string, string, []ir.Value) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(src); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginRun(ctx, Run{
		ID:            runID,
		ProgramHash:   ir.MustProgramHash(m.Program()),
		Source:        src,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}); err != nil {
		t.Fatal(err)
	}

	var runErr error
	for i := 0; i < n && runErr == nil; i++ {
		runErr = m.Run()
	}
	if err := s.FinishRun(ctx, runID, m.Cycle(), m.Snapshot(), runErr); err != nil {
		t.Fatal(err)
	}
}

func TestRecorder_WritesTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recordRun(t, s, "run-1", "(room: ? a temp :: ( ? b 50%))", 2)

	firings, err := s.ReadFirings(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	var verbs []string
	for _, f := range firings {
		verbs = append(verbs, f.Verb)
	}
	if strings.Join(verbs, ",") != "a,a,b" {
		t.Errorf("verbs = %v, want a,a,b", verbs)
	}
	if firings[2].Context != "room" || firings[2].Cycle != 2 || !firings[2].Default {
		t.Errorf("third firing = %+v", firings[2])
	}
	if len(firings[2].Params) != 1 || firings[2].Params[0] != ir.Float(0.5) {
		t.Errorf("third firing params = %v", firings[2].Params)
	}

	cycles, err := s.ReadCycles(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 || cycles[0].Active != 2 || cycles[1].Active != 2 {
		t.Errorf("cycles = %+v", cycles)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunOK || run.Cycles != 2 {
		t.Errorf("run = %+v", run)
	}
	if run.Vars["room temp"] != ir.Int(0) {
		t.Errorf("Vars = %v, want room temp created as 0", run.Vars)
	}
}

func TestRecorder_WriteFailureFaultsMachine(t *testing.T) {
	s := createTestStore(t)
	// No BeginRun: the firing insert violates the foreign key.
	rec := NewRecorder(context.Background(), s, "unbegun")

	m, err := engine.New(engine.WithTracer(rec), engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if err := m.AddDefaultVerb(engine.Verb{Func: func(*engine.Machine, string, string, []ir.Value) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	if err := m.Load("( ? a)"); err != nil {
		t.Fatal(err)
	}

	err = m.Run()
	if engine.CodeOf(err) != engine.ErrCodeTraceFailed {
		t.Errorf("Run() = %v, want TRACE_FAILED", err)
	}
	if rec.RunID() != "unbegun" {
		t.Errorf("RunID() = %s", rec.RunID())
	}
}

func TestCompareRuns_Deterministic(t *testing.T) {
	s := createTestStore(t)
	src := "( ? a :: ( ? b 1 2.5 [x])) (0 ? never)"
	recordRun(t, s, "first", src, 3)
	recordRun(t, s, "second", src, 3)

	d, err := s.CompareRuns(context.Background(), "first", "second")
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Errorf("identical programs diverged: %v", d)
	}
}

func TestCompareRuns_DifferentPrograms(t *testing.T) {
	s := createTestStore(t)
	recordRun(t, s, "first", "( ? a)", 1)
	recordRun(t, s, "second", "( ? b)", 1)

	d, err := s.CompareRuns(context.Background(), "first", "second")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || !strings.HasPrefix(d.Reason, "program hash") {
		t.Errorf("CompareRuns() = %v, want program hash divergence", d)
	}
}

func TestCompareRuns_FewerCycles(t *testing.T) {
	s := createTestStore(t)
	recordRun(t, s, "long", "( ? a)", 3)
	recordRun(t, s, "short", "( ? a)", 2)

	d, err := s.CompareRuns(context.Background(), "long", "short")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Index != 2 || d.Got != nil {
		t.Errorf("CompareRuns() = %+v", d)
	}
	if d.String() != "firing 2: trace ended early" {
		t.Errorf("String() = %q", d.String())
	}
}

func TestUUIDv7Generator(t *testing.T) {
	var g RunIDGenerator = UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	if len(a) != 36 || a == b {
		t.Errorf("Generate() = %q, %q", a, b)
	}
	if a[14] != '7' {
		t.Errorf("Generate() = %q, want version 7", a)
	}
}
