package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/ir"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Output string // output file path
}

// DumpResult is the JSON form of a compiled program.
type DumpResult struct {
	Hash    string          `json:"program_hash"`
	Rules   int             `json:"rules"`
	Program json.RawMessage `json:"program"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <program>",
		Short: "Disassemble a compiled program",
		Long: `Compile a program and print it rule by rule.

Text output lists each rule in arena order with its context, its guard
and parameters as postfix op lists, and its child rules. JSON output is
the canonical program encoding together with its hash, the same hash a
recorded run stores.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the dump to a file")

	return cmd
}

func runDump(opts *DumpOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	src, err := readProgram(path, cmd.InOrStdin())
	if err != nil {
		return programExitError(formatter, path, err)
	}

	prog, err := compiler.Parse(src, compiler.Options{})
	if err != nil {
		return parseExitError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d rule(s) from %s", prog.Len(), path)

	var buf bytes.Buffer
	if opts.Format == "json" {
		result, err := dumpResult(prog)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode program", err)
		}
		if opts.Output == "" {
			return formatter.Success(result)
		}
		if err := json.NewEncoder(&buf).Encode(result); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode program", err)
		}
	} else if err := compiler.Dump(&buf, prog, src); err != nil {
		return WrapExitError(ExitCommandError, "failed to dump program", err)
	}

	if opts.Output == "" {
		_, err := buf.WriteTo(formatter.Writer)
		return err
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	formatter.VerboseLog("Wrote %s", opts.Output)
	return nil
}

func dumpResult(prog *ir.Program) (*DumpResult, error) {
	data, err := ir.MarshalCanonical(prog)
	if err != nil {
		return nil, err
	}
	hash, err := ir.ProgramHash(prog)
	if err != nil {
		return nil, err
	}
	return &DumpResult{Hash: hash, Rules: prog.Len(), Program: data}, nil
}
