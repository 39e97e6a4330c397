package store

import (
	"context"
	"fmt"

	"github.com/roach88/kdl/internal/ir"
)

// BeginRun records the start of a run. Status is forced to running.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, program_hash, source, engine_version, ir_version, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.ProgramHash,
		run.Source,
		run.EngineVersion,
		run.IRVersion,
		string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run and its final variables.
// runErr is nil for a clean finish.
func (s *Store) FinishRun(ctx context.Context, runID string, cycles int64, vars map[string]ir.Value, runErr error) error {
	varsJSON, err := marshalVars(vars)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	status, msg := RunOK, ""
	if runErr != nil {
		status, msg = RunFaulted, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, cycles = ?, error = ?, vars = ?
		WHERE id = ?
	`, string(status), cycles, msg, varsJSON, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// WriteFiring inserts a firing record. An empty ID is filled from
// ir.FiringID. Uses ON CONFLICT(id) DO NOTHING, so recording the same
// firing twice is harmless.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteFiring(ctx context.Context, f Firing) error {
	if f.ID == "" {
		f.ID = ir.FiringID(f.RunID, f.Cycle, f.Seq, f.Rule)
	}
	paramsJSON, err := marshalParams(f.Params)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO firings
		(id, run_id, cycle, seq, rule, context, verb, params, is_default)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		f.ID,
		f.RunID,
		f.Cycle,
		f.Seq,
		int(f.Rule),
		f.Context,
		f.Verb,
		paramsJSON,
		boolToInt(f.Default),
	)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	return nil
}

// WriteCycle records the schedule size at the end of a cycle.
func (s *Store) WriteCycle(ctx context.Context, c Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (run_id, cycle, active)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, cycle) DO NOTHING
	`, c.RunID, c.Cycle, c.Active)
	if err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
