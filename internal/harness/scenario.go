package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario loads one program, seeds variables, runs a fixed number of
// cycles and asserts on the recorded firings and final variables.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the rule source. Exactly one of Program and ProgramFile
	// must be set.
	Program string `yaml:"program,omitempty"`

	// ProgramFile is a path to the rule source, relative to the scenario
	// file location.
	ProgramFile string `yaml:"program_file,omitempty"`

	// Vars seeds global variables before the program is loaded.
	// YAML integers become Int, floats Float and strings Str.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Verbs declares extra verbs. Each one echoes its invocation to the
	// scenario output as "name(context): params".
	Verbs map[string]VerbDecl `yaml:"verbs,omitempty"`

	// DefaultVerb selects the verb answering unregistered names:
	// "log", "fail" or empty for none.
	DefaultVerb string `yaml:"default_verb,omitempty"`

	// Cycles is the number of Run calls. Execution stops early on error.
	Cycles int `yaml:"cycles"`

	// MaxActiveRules caps the schedule. Zero means unlimited.
	MaxActiveRules int `yaml:"max_active_rules,omitempty"`

	// Assertions validate the trace, the final variables and the outcome.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID. If empty, defaults to "test-run"
	// for deterministic golden file comparison.
	RunID string `yaml:"run_id,omitempty"`
}

// VerbDecl declares an echo verb and its signature.
type VerbDecl struct {
	// Params lists parameter kinds: int, float or string.
	Params []string `yaml:"params,omitempty"`

	// Validate enforces Params at dispatch.
	Validate bool `yaml:"validate,omitempty"`
}

// Assertion validates the trace, final variables or run outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fired": a firing of Verb exists, optionally matching Context,
	//   Params and Cycle
	// - "fired_order": Verbs first fire in the given order
	// - "fired_count": Verb fires exactly Count times
	// - "final_var": variable Name holds Value after the run
	// - "run_error": the run stopped with error Code
	// - "output": Line was written to the scenario output
	Type string `yaml:"type"`

	// Verb is the verb name (fired, fired_count).
	Verb string `yaml:"verb,omitempty"`

	// Context must equal the firing's context when set (fired).
	Context string `yaml:"context,omitempty"`

	// Params must equal the firing's parameters when set (fired).
	Params []any `yaml:"params,omitempty"`

	// Cycle must equal the firing's cycle when non-zero (fired).
	Cycle int64 `yaml:"cycle,omitempty"`

	// Count is the expected number of firings (fired_count).
	Count int `yaml:"count,omitempty"`

	// Verbs is the expected first-firing order (fired_order).
	Verbs []string `yaml:"verbs,omitempty"`

	// Name is the full variable name (final_var).
	Name string `yaml:"name,omitempty"`

	// Value is the expected variable value (final_var).
	Value any `yaml:"value,omitempty"`

	// Code is a runtime or parse error code (run_error).
	Code string `yaml:"code,omitempty"`

	// Line is one expected output line (output).
	Line string `yaml:"line,omitempty"`
}

// Assertion type constants.
const (
	AssertFired      = "fired"
	AssertFiredOrder = "fired_order"
	AssertFiredCount = "fired_count"
	AssertFinalVar   = "final_var"
	AssertRunError   = "run_error"
	AssertOutput     = "output"
)

// LoadScenario reads and parses a scenario YAML file, resolving
// program_file relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving program_file relative to the provided base path and reading
// it into Program.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.ProgramFile != "" {
		programPath := scenario.ProgramFile
		if !filepath.IsAbs(programPath) && basePath != "" {
			programPath = filepath.Join(basePath, programPath)
		}
		src, err := os.ReadFile(programPath)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: program file: %w", err)
		}
		scenario.Program = string(src)
	}

	return scenario, nil
}

// ParseScenario decodes a scenario document. program_file is left
// unresolved.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Program == "" && s.ProgramFile == "":
		return fmt.Errorf("program or program_file is required")
	case s.Program != "" && s.ProgramFile != "":
		return fmt.Errorf("program and program_file are mutually exclusive")
	}

	if s.Cycles < 0 {
		return fmt.Errorf("cycles must be non-negative")
	}
	if s.MaxActiveRules < 0 {
		return fmt.Errorf("max_active_rules must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, _, err := hostlib.DefaultVerb(s.DefaultVerb, nil); err != nil {
		return fmt.Errorf("default_verb: %w", err)
	}

	for name, v := range s.Vars {
		if _, err := convertToValue(v); err != nil {
			return fmt.Errorf("vars[%q]: %w", name, err)
		}
	}

	for name, decl := range s.Verbs {
		if _, err := decl.kinds(); err != nil {
			return fmt.Errorf("verbs[%q]: %w", name, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFired:
		if a.Verb == "" {
			return fmt.Errorf("assertions[%d]: verb is required for fired", index)
		}
		for j, p := range a.Params {
			if _, err := convertToValue(p); err != nil {
				return fmt.Errorf("assertions[%d].params[%d]: %w", index, j, err)
			}
		}
	case AssertFiredOrder:
		if len(a.Verbs) == 0 {
			return fmt.Errorf("assertions[%d]: verbs list is required for fired_order", index)
		}
	case AssertFiredCount:
		if a.Verb == "" {
			return fmt.Errorf("assertions[%d]: verb is required for fired_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fired_count", index)
		}
	case AssertFinalVar:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for final_var", index)
		}
		if _, err := convertToValue(a.Value); err != nil {
			return fmt.Errorf("assertions[%d].value: %w", index, err)
		}
	case AssertRunError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for run_error", index)
		}
	case AssertOutput:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for output", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// kinds converts the declared parameter kinds.
func (d VerbDecl) kinds() ([]ir.Kind, error) {
	out := make([]ir.Kind, len(d.Params))
	for i, name := range d.Params {
		k, err := ir.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		if k == ir.KindNil {
			return nil, fmt.Errorf("params[%d]: nil is not a parameter kind", i)
		}
		out[i] = k
	}
	return out, nil
}

// convertToValue converts a YAML-decoded scalar to a machine value.
// Nulls, booleans and collections have no machine representation.
func convertToValue(val any) (ir.Value, error) {
	switch v := val.(type) {
	case nil:
		return nil, fmt.Errorf("null values have no machine representation")
	case string:
		return ir.Str(v), nil
	case int:
		return ir.Int(int64(v)), nil
	case int64:
		return ir.Int(v), nil
	case uint64:
		return nil, fmt.Errorf("integer %d overflows int64", v)
	case float64:
		return ir.Float(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", val)
	}
}
