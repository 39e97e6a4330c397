package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/kdl/internal/ir"
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun begins a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{
		ID:            id,
		ProgramHash:   "test-hash",
		Source:        "( ? a)",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}

func createTestFiring(runID string, cycle, seq int64, verb string, params ...ir.Value) Firing {
	return Firing{
		RunID:  runID,
		Cycle:  cycle,
		Seq:    seq,
		Rule:   ir.RuleID(seq - 1),
		Verb:   verb,
		Params: params,
	}
}
