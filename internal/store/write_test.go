package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/kdl/internal/ir"
)

func TestBeginRun_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	want := createTestRun(t, s, "run-1")

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, RunRunning)
	}
	if got.Source != want.Source || got.ProgramHash != want.ProgramHash {
		t.Errorf("ReadRun() = %+v, want fields of %+v", got, want)
	}
	if len(got.Vars) != 0 {
		t.Errorf("Vars = %v, want empty", got.Vars)
	}
}

func TestBeginRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	err := s.BeginRun(context.Background(), Run{ID: "run-1", ProgramHash: "h", Source: "", EngineVersion: "v", IRVersion: "1"})
	if err == nil {
		t.Fatal("BeginRun() with duplicate ID succeeded")
	}
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "ok")
	createTestRun(t, s, "bad")

	vars := map[string]ir.Value{"n": ir.Int(3), "door open": ir.Float(0.5), "name": ir.Str("x")}
	if err := s.FinishRun(ctx, "ok", 3, vars, nil); err != nil {
		t.Fatalf("FinishRun(ok) failed: %v", err)
	}
	if err := s.FinishRun(ctx, "bad", 1, nil, errors.New("TYPE_MISMATCH: boom")); err != nil {
		t.Fatalf("FinishRun(bad) failed: %v", err)
	}

	ok, err := s.ReadRun(ctx, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if ok.Status != RunOK || ok.Cycles != 3 || ok.Error != "" {
		t.Errorf("ok run = %+v", ok)
	}
	if !reflect.DeepEqual(ok.Vars, vars) {
		t.Errorf("Vars = %v, want %v", ok.Vars, vars)
	}

	bad, err := s.ReadRun(ctx, "bad")
	if err != nil {
		t.Fatal(err)
	}
	if bad.Status != RunFaulted || bad.Error != "TYPE_MISMATCH: boom" {
		t.Errorf("bad run = %+v", bad)
	}
}

func TestFinishRun_Unknown(t *testing.T) {
	s := createTestStore(t)
	err := s.FinishRun(context.Background(), "missing", 0, nil, nil)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() = %v, want ErrRunNotFound", err)
	}
}

func TestWriteFiring_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	in := Firing{
		RunID:   "run-1",
		Cycle:   2,
		Seq:     5,
		Rule:    3,
		Context: "weather raining",
		Verb:    "report",
		Params:  []ir.Value{ir.Int(1), ir.Float(2.5), ir.Str("sunny")},
		Default: true,
	}
	if err := s.WriteFiring(ctx, in); err != nil {
		t.Fatalf("WriteFiring() failed: %v", err)
	}

	got, err := s.ReadFirings(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadFirings() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReadFirings() returned %d firings, want 1", len(got))
	}

	in.ID = ir.FiringID("run-1", 2, 5, 3)
	if !reflect.DeepEqual(got[0], in) {
		t.Errorf("ReadFirings()[0] = %+v, want %+v", got[0], in)
	}
}

func TestWriteFiring_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	f := createTestFiring("run-1", 1, 1, "a")
	for i := 0; i < 3; i++ {
		if err := s.WriteFiring(ctx, f); err != nil {
			t.Fatalf("WriteFiring() #%d failed: %v", i, err)
		}
	}

	got, err := s.ReadFirings(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d firings after duplicate writes, want 1", len(got))
	}
}

func TestWriteFiring_NilParamsReadEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	if err := s.WriteFiring(ctx, createTestFiring("run-1", 1, 1, "a")); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadFirings(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Params == nil || len(got[0].Params) != 0 {
		t.Errorf("Params = %#v, want empty non-nil slice", got[0].Params)
	}
}

func TestWriteFiring_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteFiring(context.Background(), createTestFiring("no-such-run", 1, 1, "a"))
	if err == nil {
		t.Fatal("WriteFiring() for unknown run succeeded; foreign keys not enforced")
	}
}

func TestWriteFiring_RejectsNonFiniteFloat(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	f := createTestFiring("run-1", 1, 1, "a", ir.Float(posInf()))
	if err := s.WriteFiring(context.Background(), f); err == nil {
		t.Fatal("WriteFiring() accepted +Inf parameter")
	}
}

func TestWriteCycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	for i, active := range []int{1, 3, 3} {
		if err := s.WriteCycle(ctx, Cycle{RunID: "run-1", Cycle: int64(i + 1), Active: active}); err != nil {
			t.Fatalf("WriteCycle() failed: %v", err)
		}
	}
	got, err := s.ReadCycles(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []Cycle{{"run-1", 1, 1}, {"run-1", 2, 3}, {"run-1", 3, 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadCycles() = %+v, want %+v", got, want)
	}
}
