package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/ir"
)

const weatherProgram = `(weather: {>rain} ? alarm [wet] ::
  (^: ? print [alarm raised]))
`

func TestDumpText(t *testing.T) {
	path := writeFile(t, t.TempDir(), "weather.kdl", weatherProgram)

	stdout, _, err := runCLI(t, "dump", path)
	require.NoError(t, err)

	prog, err := compiler.Parse(weatherProgram, compiler.Options{})
	require.NoError(t, err)
	var want bytes.Buffer
	require.NoError(t, compiler.Dump(&want, prog, weatherProgram))
	assert.Equal(t, want.String(), stdout)
	assert.Contains(t, stdout, "rule 0 @1:1 root")
	assert.Contains(t, stdout, `context: "weather"`)
}

func TestDumpJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "weather.kdl", weatherProgram)

	stdout, _, err := runCLI(t, "--format", "json", "dump", path)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DumpResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Rules)

	prog, err := compiler.Parse(weatherProgram, compiler.Options{})
	require.NoError(t, err)
	hash, err := ir.ProgramHash(prog)
	require.NoError(t, err)
	assert.Equal(t, hash, resp.Data.Hash)
	assert.NotEmpty(t, resp.Data.Program)
}

func TestDumpOutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "weather.kdl", weatherProgram)
	outPath := filepath.Join(dir, "weather.dump")

	stdout, _, err := runCLI(t, "dump", path, "-o", outPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "verb:    alarm")

	jsonPath := filepath.Join(dir, "weather.json")
	_, _, err = runCLI(t, "--format", "json", "dump", path, "-o", jsonPath)
	require.NoError(t, err)
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	var result DumpResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 2, result.Rules)
}

func TestDumpOutputUnwritable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "weather.kdl", weatherProgram)

	stdout, _, err := runCLI(t, "dump", path, "-o", filepath.Join(dir, "missing", "out.dump"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeWriteFailed)
}

func TestDumpParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.kdl", "(weather: ? alarm\n")

	_, _, err := runCLI(t, "dump", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
