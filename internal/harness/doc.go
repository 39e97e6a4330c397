// Package harness provides conformance testing for kdl programs.
//
// The harness loads a program into a real machine, runs a fixed number of
// cycles and validates the recorded trace as an executable contract test.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	program: |
//	  (weather: {>rain} ? alarm [wet] :: ( ? print [done]))
//	vars: { "weather rain": 1 }
//	verbs:
//	  alarm: { params: [string], validate: true }
//	default_verb: log
//	cycles: 2
//	assertions:
//	  - type: fired
//	    verb: alarm
//	    context: weather
//	    params: [wet]
//	  - type: final_var
//	    name: weather rain
//	    value: 1
//
// program_file may replace program; it is resolved next to the scenario.
// Declared verbs echo "name(context): params" to the scenario output; the
// host verbs print, set and incr are always available.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - fired: a firing of verb exists, optionally with context, params, cycle
//   - fired_order: verbs first fire in the given order
//   - fired_count: a verb fires exactly count times
//   - final_var: a variable holds a value after the run
//   - run_error: the run stopped with the given error code
//   - output: a line was written by print or an echo verb
//
// # Deterministic Testing
//
// Every scenario executes with:
//   - A fixed run ID (scenario.run_id or "test-run")
//   - An in-memory SQLite trace store, read back for assertions
//   - A counting allocator that fails the scenario on any leak
//
// Golden snapshots (RunWithGolden) live in testdata/golden.
package harness
