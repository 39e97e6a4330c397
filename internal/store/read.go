package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kdl/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, program_hash, source, engine_version, ir_version, status, cycles, error, vars`

// ReadRun retrieves a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run in insertion order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently inserted run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ReadFirings returns a run's firings in dispatch order.
func (s *Store) ReadFirings(ctx context.Context, runID string) ([]Firing, error) {
	return s.queryFirings(ctx, `
		SELECT id, run_id, cycle, seq, rule, context, verb, params, is_default
		FROM firings
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
}

// ReadFiringsForVerb returns a run's firings of one verb in dispatch order.
func (s *Store) ReadFiringsForVerb(ctx context.Context, runID, verb string) ([]Firing, error) {
	return s.queryFirings(ctx, `
		SELECT id, run_id, cycle, seq, rule, context, verb, params, is_default
		FROM firings
		WHERE run_id = ? AND verb = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID, verb)
}

func (s *Store) queryFirings(ctx context.Context, query string, args ...any) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read firings: %w", err)
	}
	defer rows.Close()

	var firings []Firing
	for rows.Next() {
		f, err := scanFiring(rows)
		if err != nil {
			return nil, fmt.Errorf("read firings: %w", err)
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read firings: %w", err)
	}
	return firings, nil
}

// ReadCycles returns a run's cycle records in cycle order.
func (s *Store) ReadCycles(ctx context.Context, runID string) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, cycle, active
		FROM cycles
		WHERE run_id = ?
		ORDER BY cycle ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.RunID, &c.Cycle, &c.Active); err != nil {
			return nil, fmt.Errorf("read cycles: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cycles: %w", err)
	}
	return cycles, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var status, varsJSON string
	err := sc.Scan(
		&run.ID,
		&run.ProgramHash,
		&run.Source,
		&run.EngineVersion,
		&run.IRVersion,
		&status,
		&run.Cycles,
		&run.Error,
		&varsJSON,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	if run.Vars, err = unmarshalVars(varsJSON); err != nil {
		return Run{}, err
	}
	return run, nil
}

func scanFiring(sc scanner) (Firing, error) {
	var f Firing
	var rule, isDefault int
	var paramsJSON string
	err := sc.Scan(
		&f.ID,
		&f.RunID,
		&f.Cycle,
		&f.Seq,
		&rule,
		&f.Context,
		&f.Verb,
		&paramsJSON,
		&isDefault,
	)
	if err != nil {
		return Firing{}, err
	}
	f.Rule = ir.RuleID(rule)
	f.Default = isDefault != 0
	if f.Params, err = unmarshalParams(paramsJSON); err != nil {
		return Firing{}, err
	}
	return f, nil
}
