package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kdl/internal/ir"
	"github.com/roach88/kdl/internal/store"
	"github.com/roach88/kdl/internal/testutil"
)

const divideProgram = "( ? set [x] 1 :: (1 / 0 ? never))"

func TestRunPrints(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.kdl", "( ? print [hello])\n")

	stdout, _, err := runCLI(t, "run", path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
}

func TestRunCycles(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.kdl", "( ? print [hello])\n")

	stdout, _, err := runCLI(t, "run", path, "--cycles", "3")
	require.NoError(t, err)
	assert.Equal(t, "hello\nhello\nhello\n", stdout)

	stdout, _, err = runCLI(t, "run", path, "--cycles", "0")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRunNegativeCycles(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.kdl", "( ? print [hello])\n")

	stdout, _, err := runCLI(t, "run", path, "--cycles", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeBadFlag)
}

func TestRunVarFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "gate.kdl", "(n > 1 ? print [big] n)\n")

	stdout, _, err := runCLI(t, "run", path, "--var", "n=5")
	require.NoError(t, err)
	assert.Equal(t, "big 5\n", stdout)

	stdout, _, err = runCLI(t, "run", path, "--var", "n=0")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRunConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "heat.kdl", "(room: {>temp} < 18 ? heat {>temp})\n")
	cfgPath := writeFile(t, dir, "kdl.cue", `
cycles: 2
vars: "room temp": 15.5
verbs: heat: params: ["float"]
`)

	stdout, _, err := runCLI(t, "run", path, "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "heat(room): 15.5\nheat(room): 15.5\n", stdout, "cycles come from the config")

	stdout, _, err = runCLI(t, "run", path, "--config", cfgPath, "--cycles", "1")
	require.NoError(t, err)
	assert.Equal(t, "heat(room): 15.5\n", stdout, "--cycles overrides the config")
}

func TestRunBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.kdl", "( ? print [hello])\n")
	cfgPath := writeFile(t, dir, "kdl.cue", "cycles: -3\n")

	stdout, _, err := runCLI(t, "run", path, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeConfigSchema)
}

func TestRunMissingProgram(t *testing.T) {
	_, _, err := runCLI(t, "run", filepath.Join(t.TempDir(), "nope.kdl"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.kdl", "( ? print [hello]\n")

	stdout, _, err := runCLI(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "parse failed")
	assert.Contains(t, stdout, "Error [")
}

func TestRunFault(t *testing.T) {
	path := writeFile(t, t.TempDir(), "div.kdl", divideProgram)

	stdout, _, err := runCLI(t, "run", path, "--cycles", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [DIVIDE_BY_ZERO]")
}

func TestRunUnknownVerb(t *testing.T) {
	path := writeFile(t, t.TempDir(), "shout.kdl", "( ? shout [hi])\n")

	_, _, err := runCLI(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, stderr, err := runCLI(t, "run", path, "--default-verb", "log")
	require.NoError(t, err)
	assert.Contains(t, stderr, "unhandled verb")
	assert.Contains(t, stderr, "verb=shout")
}

func TestRunJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "set.kdl", "( ? set [x] 1 :: ( ? print x))\n")

	stdout, stderr, err := runCLI(t, "--format", "json", "run", path, "--cycles", "2")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stderr, "verb output moves to stderr")

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Cycles  int64                      `json:"cycles"`
			Firings int                        `json:"firings"`
			Active  int                        `json:"active"`
			Vars    map[string]json.RawMessage `json:"vars"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(2), resp.Data.Cycles)
	assert.Equal(t, 3, resp.Data.Firings)
	assert.Equal(t, 2, resp.Data.Active)
	assert.JSONEq(t, `{"int":1}`, string(resp.Data.Vars["x"]))
}

func TestRunJSONFault(t *testing.T) {
	path := writeFile(t, t.TempDir(), "div.kdl", divideProgram)

	stdout, _, err := runCLI(t, "--format", "json", "run", path, "--cycles", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DIVIDE_BY_ZERO", resp.Error.Code)
	assert.NotNil(t, resp.Data, "partial result is reported with the error")
}

func TestRunStdin(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("( ? print [from stdin])"))
	cmd.SetArgs([]string{"run", "-"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "from stdin\n", out.String())
}

func TestRunRecords(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.kdl", "( ? print [hello])\n")
	dbPath := filepath.Join(dir, "kdl.db")

	_, _, err := runCLI(t, "run", path, "--cycles", "2", "--db", dbPath)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	run, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunOK, run.Status)
	assert.Equal(t, int64(2), run.Cycles)
	assert.Equal(t, "( ? print [hello])\n", run.Source)

	firings, err := st.ReadFirings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, firings, 2)
	assert.Equal(t, "print", firings[0].Verb)
	assert.Equal(t, []ir.Value{ir.Str("hello")}, firings[0].Params)
}

func TestExecutor_Records(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	x := &executor{
		cfg:    DefaultConfig(),
		out:    io.Discard,
		logger: newLogger(io.Discard, false),
		store:  st,
		runIDs: testutil.NewFixedRunIDGenerator("run-a"),
	}

	exec, err := x.execute(context.Background(), divideProgram, 3)
	require.NoError(t, err)
	assert.Equal(t, "run-a", exec.RunID)
	require.Error(t, exec.Err)
	assert.Equal(t, "DIVIDE_BY_ZERO", errorCode(exec.Err))
	assert.Equal(t, int64(1), exec.Cycles, "the faulted cycle does not count")
	assert.Equal(t, ir.Int(1), exec.Vars["x"])

	run, err := st.ReadRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, store.RunFaulted, run.Status)
	assert.Equal(t, int64(1), run.Cycles)
	assert.Contains(t, run.Error, "DIVIDE_BY_ZERO")
}

func TestExecutor_ParseErrorRecordsNothing(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	x := &executor{
		cfg:    DefaultConfig(),
		out:    io.Discard,
		logger: newLogger(io.Discard, false),
		store:  st,
		runIDs: testutil.NewFixedRunIDGenerator(),
	}

	exec, err := x.execute(context.Background(), "(", 1)
	require.NoError(t, err)
	require.Error(t, exec.Err)
	assert.Empty(t, exec.RunID)

	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := &executor{cfg: DefaultConfig(), out: io.Discard, logger: newLogger(io.Discard, false)}
	exec, err := x.execute(ctx, "( ? print [hello])", 5)
	require.NoError(t, err)
	require.NoError(t, exec.Err)
	assert.Equal(t, int64(0), exec.Cycles)
}
