package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kdl/internal/ir"
)

// Divergence describes the first point where two traces disagree.
type Divergence struct {
	// Index is the position in dispatch order of the first mismatch.
	Index int

	// Want and Got are the firings at Index; either is nil when one
	// trace ended early.
	Want *Firing
	Got  *Firing

	Reason string
}

func (d *Divergence) String() string {
	return fmt.Sprintf("firing %d: %s", d.Index, d.Reason)
}

// Diverge compares two firing sequences by their observable content
// (cycle, seq, rule, context, verb, params, default flag). IDs and run
// IDs are ignored. It returns nil when the traces match.
func Diverge(want, got []Firing) *Divergence {
	n := min(len(want), len(got))
	for i := 0; i < n; i++ {
		if reason := firingMismatch(want[i], got[i]); reason != "" {
			return &Divergence{Index: i, Want: &want[i], Got: &got[i], Reason: reason}
		}
	}
	switch {
	case len(want) > n:
		return &Divergence{Index: n, Want: &want[n], Reason: "trace ended early"}
	case len(got) > n:
		return &Divergence{Index: n, Got: &got[n], Reason: "unexpected extra firing"}
	}
	return nil
}

func firingMismatch(a, b Firing) string {
	switch {
	case a.Cycle != b.Cycle:
		return fmt.Sprintf("cycle %d != %d", a.Cycle, b.Cycle)
	case a.Seq != b.Seq:
		return fmt.Sprintf("seq %d != %d", a.Seq, b.Seq)
	case a.Rule != b.Rule:
		return fmt.Sprintf("rule %d != %d", a.Rule, b.Rule)
	case a.Verb != b.Verb:
		return fmt.Sprintf("verb %q != %q", a.Verb, b.Verb)
	case a.Context != b.Context:
		return fmt.Sprintf("context %q != %q", a.Context, b.Context)
	case a.Default != b.Default:
		return fmt.Sprintf("default %t != %t", a.Default, b.Default)
	case !slices.Equal(a.Params, b.Params):
		return fmt.Sprintf("params [%s] != [%s]", formatValues(a.Params), formatValues(b.Params))
	}
	return ""
}

func formatValues(vs []ir.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = ir.Format(v)
	}
	return strings.Join(parts, " ")
}

// CompareRuns loads two runs and reports where their firings diverge.
// Runs of different programs are reported as a divergence at index 0.
func (s *Store) CompareRuns(ctx context.Context, wantID, gotID string) (*Divergence, error) {
	want, err := s.ReadRun(ctx, wantID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	got, err := s.ReadRun(ctx, gotID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	if want.ProgramHash != got.ProgramHash {
		return &Divergence{Reason: fmt.Sprintf("program hash %.12s != %.12s", want.ProgramHash, got.ProgramHash)}, nil
	}

	wantFirings, err := s.ReadFirings(ctx, wantID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	gotFirings, err := s.ReadFirings(ctx, gotID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	return Diverge(wantFirings, gotFirings), nil
}
