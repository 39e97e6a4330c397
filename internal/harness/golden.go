package harness

import (
	"bytes"
	"fmt"
	"slices"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/kdl/internal/ir"
)

// Snapshot renders a result as the text stored in golden files.
// Values use canonical JSON, so Int 1 and Float 1 stay distinct and
// variables appear in sorted order.
//
//	scenario: greeting
//	cycles: 2
//	firings:
//	  1 cycle=1 rule=0 verb="print" context="" params=[{"str":"hi"}]
//	vars:
//	  "n" = {"int":1}
//	output:
//	  hi
//	error: none
func Snapshot(name string, r *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintf(&buf, "cycles: %d\n", r.Cycles)

	buf.WriteString("firings:\n")
	for _, e := range r.Trace {
		params, err := ir.MarshalCanonical(e.Params)
		if err != nil {
			return nil, fmt.Errorf("firing %d: %w", e.Seq, err)
		}
		def := ""
		if e.Default {
			def = " default"
		}
		fmt.Fprintf(&buf, "  %d cycle=%d rule=%d verb=%q context=%q params=%s%s\n",
			e.Seq, e.Cycle, e.Rule, e.Verb, e.Context, params, def)
	}

	buf.WriteString("vars:\n")
	names := make([]string, 0, len(r.Vars))
	for name := range r.Vars {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v, err := ir.MarshalCanonical(r.Vars[name])
		if err != nil {
			return nil, fmt.Errorf("var %q: %w", name, err)
		}
		fmt.Fprintf(&buf, "  %q = %s\n", name, v)
	}

	buf.WriteString("output:\n")
	for _, line := range r.Output {
		fmt.Fprintf(&buf, "  %s\n", line)
	}

	code := "none"
	if r.RunError != nil {
		code = errorCode(r.RunError)
	}
	fmt.Fprintf(&buf, "error: %s\n", code)
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
