package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/ir"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	MachineFlags
}

// CheckResult holds check results.
type CheckResult struct {
	Valid  bool                       `json:"valid"`
	Rules  int                        `json:"rules"`
	Hash   string                     `json:"program_hash,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <program>",
		Short: "Check a program without running it",
		Long: `Parse a program and run the static checks.

Beyond parsing, check verifies that every expression is balanced and that
every verb is known, with the right number and kinds of literal
parameters for verbs that validate. Known verbs are the host verbs and
those declared in --config; --default-verb accepts any name.

Exit codes:
  0 - Program valid
  1 - Static check failed
  2 - Command error (unreadable program, parse error, bad config)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	opts.MachineFlags.register(cmd)

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.MachineFlags.resolve()
	if err != nil {
		return configExitError(formatter, err)
	}

	src, err := readProgram(path, cmd.InOrStdin())
	if err != nil {
		return programExitError(formatter, path, err)
	}

	prog, err := compiler.Parse(src, cfg.Limits.ParseOptions())
	if err != nil {
		return parseExitError(formatter, err)
	}
	formatter.VerboseLog("Parsed %d rule(s) from %s", prog.Len(), path)

	sigs, err := hostSignatures(cfg)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to build verb table", err)
	}
	formatter.VerboseLog("Known verbs: %v", slices.Sorted(maps.Keys(sigs)))

	result := CheckResult{
		Rules: prog.Len(),
		Errors: compiler.Validate(prog, compiler.ValidateOptions{
			Source:      src,
			Verbs:       sigs,
			DefaultVerb: cfg.DefaultVerb != "",
		}),
	}
	result.Valid = len(result.Errors) == 0
	if result.Valid {
		result.Hash, err = ir.ProgramHash(prog)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash program", err)
		}
		return outputCheckSuccess(formatter, result)
	}
	return outputCheckErrors(formatter, result)
}

// hostSignatures builds the machine run would build and reads its verb
// table back, so check sees exactly the verbs run installs.
func hostSignatures(cfg *Config) (map[string]compiler.Signature, error) {
	m, err := newMachine(cfg, io.Discard, newLogger(io.Discard, false))
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return m.Signatures(), nil
}

func outputCheckSuccess(formatter *OutputFormatter, result CheckResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Program valid (%d rule(s))\n", result.Rules)
	return nil
}

func outputCheckErrors(formatter *OutputFormatter, result CheckResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("check failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Check failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("check failed with %d error(s)", len(errs)))
}
