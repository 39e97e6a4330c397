package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/engine"
	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] cycle %d %s(%s) %s\n",
				event.Seq, event.Cycle, event.Verb, event.Context, hostlib.FormatParams(event.Params))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertFired:
		return assertFired(result.Trace, a)
	case AssertFiredOrder:
		return assertFiredOrder(result.Trace, a)
	case AssertFiredCount:
		return assertFiredCount(result.Trace, a)
	case AssertFinalVar:
		return assertFinalVar(result.Vars, a)
	case AssertRunError:
		return assertRunError(result.RunError, a)
	case AssertOutput:
		return assertOutput(result.Output, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertFired checks if the trace contains a firing of the verb matching
// every optional field of the assertion.
func assertFired(trace []TraceEvent, assertion Assertion) error {
	want, err := convertValues(assertion.Params)
	if err != nil {
		return err
	}
	for _, event := range trace {
		if event.Verb != assertion.Verb {
			continue
		}
		if assertion.Context != "" && event.Context != assertion.Context {
			continue
		}
		if assertion.Cycle != 0 && event.Cycle != assertion.Cycle {
			continue
		}
		if assertion.Params != nil && !slices.Equal(event.Params, want) {
			continue
		}
		return nil
	}

	expected := "verb " + assertion.Verb
	if assertion.Context != "" {
		expected += fmt.Sprintf(" in context %q", assertion.Context)
	}
	if assertion.Params != nil {
		expected += fmt.Sprintf(" with params [%s]", hostlib.FormatParams(want))
	}
	if assertion.Cycle != 0 {
		expected += fmt.Sprintf(" in cycle %d", assertion.Cycle)
	}
	return &AssertionError{
		Type:     AssertFired,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertFiredOrder checks if verbs first fire in the specified order.
// Firings don't need to be consecutive (intervening firings are allowed).
func assertFiredOrder(trace []TraceEvent, assertion Assertion) error {
	// Find first position of each expected verb, 1-indexed for readability
	positions := make(map[string]int)
	for i, event := range trace {
		if positions[event.Verb] == 0 {
			positions[event.Verb] = i + 1
		}
	}

	for _, verb := range assertion.Verbs {
		if positions[verb] == 0 {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("all verbs fired: %v", assertion.Verbs),
				Actual:   fmt.Sprintf("missing verb: %s", verb),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Verbs); i++ {
		prev := assertion.Verbs[i-1]
		curr := assertion.Verbs[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("verbs in order: %v", assertion.Verbs),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFiredCount checks if the verb fires exactly the specified number of times.
func assertFiredCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Verb == assertion.Verb {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("%d firings of %s", assertion.Count, assertion.Verb),
			Actual:   fmt.Sprintf("%d firings", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalVar checks a variable's kind and value after the run. An
// absent variable reads as Int 0, as it would inside the machine.
func assertFinalVar(vars map[string]ir.Value, assertion Assertion) error {
	want, err := convertToValue(assertion.Value)
	if err != nil {
		return err
	}
	got, ok := vars[assertion.Name]
	if !ok {
		got = ir.Int(0)
	}
	if got != want {
		return &AssertionError{
			Type:     AssertFinalVar,
			Expected: fmt.Sprintf("%s = %s %s", assertion.Name, ir.KindOf(want), ir.Format(want)),
			Actual:   fmt.Sprintf("%s = %s %s", assertion.Name, ir.KindOf(got), ir.Format(got)),
		}
	}
	return nil
}

// assertRunError checks the code of the error that stopped the run.
func assertRunError(runErr error, assertion Assertion) error {
	got := errorCode(runErr)
	if got != assertion.Code {
		actual := "run completed without error"
		if runErr != nil {
			actual = fmt.Sprintf("%s (%v)", got, runErr)
		}
		return &AssertionError{
			Type:     AssertRunError,
			Expected: "error " + assertion.Code,
			Actual:   actual,
		}
	}
	return nil
}

// assertOutput checks that a line was written by a host verb.
func assertOutput(output []string, assertion Assertion) error {
	if slices.Contains(output, assertion.Line) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutput,
		Expected: fmt.Sprintf("output line %q", assertion.Line),
		Actual:   fmt.Sprintf("output %q", output),
	}
}

// errorCode returns the runtime or parse error code of err, or "".
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return string(compiler.CodeOf(err))
}

func convertValues(raw []any) ([]ir.Value, error) {
	out := make([]ir.Value, len(raw))
	for i, r := range raw {
		v, err := convertToValue(r)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
