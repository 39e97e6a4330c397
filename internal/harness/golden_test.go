package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kdl/internal/ir"
)

func TestRunWithGolden_Counter(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "counter.yaml"))
	require.NoError(t, err)

	// To regenerate golden files:
	//   go test ./internal/harness -run TestRunWithGolden -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_Contexts(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "contexts.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertGolden_FaultedRun(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "divide_by_zero.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, scenario.Name, result))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "contexts.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_DistinguishesKinds(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Cycle: 1, Seq: 1, Verb: "v", Params: []ir.Value{ir.Int(1), ir.Float(1)}, Default: true},
	}
	result.Vars["x"] = ir.Str("1")

	snap, err := Snapshot("kinds", result)
	require.NoError(t, err)
	assert.Contains(t, string(snap), `params=[{"int":1},{"float":1}] default`)
	assert.Contains(t, string(snap), `"x" = {"str":"1"}`)
	assert.Contains(t, string(snap), "error: none")
}
