package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MachineFlags
	Cycles   int
	Database string

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator store.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Run a program for a number of cycles",
		Long: `Load a kdl program and run it.

The machine installs the host verbs print, set and incr, any echo verbs
declared in the config file, and the optional default verb. Variables
from the config and --var are set before the program loads.

Verb output goes to stdout, or to stderr with --format json so the
result stays parseable. With --db every firing is recorded for
"kdl trace" and "kdl replay".

Exit codes:
  0 - All cycles completed
  1 - The machine faulted
  2 - Command error (unreadable program, parse error, bad config)

Examples:
  kdl run rules.kdl
  kdl run rules.kdl --cycles 10 --var "room temp=15.5"
  kdl run rules.kdl --config kdl.cue --db ./kdl.db
  echo '( ? print [hi])' | kdl run -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	opts.MachineFlags.register(cmd)
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 1, "number of cycles to run")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run into this SQLite database")

	return cmd
}

func runProgram(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := opts.MachineFlags.resolve()
	if err != nil {
		return configExitError(formatter, err)
	}
	if cmd.Flags().Changed("cycles") || opts.Config == "" {
		cfg.Cycles = opts.Cycles
	}
	if cfg.Cycles < 0 {
		return configExitError(formatter, &LoadError{Code: ErrCodeBadFlag, Message: fmt.Sprintf("--cycles %d: must be non-negative", cfg.Cycles)})
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	src, err := readProgram(path, cmd.InOrStdin())
	if err != nil {
		return programExitError(formatter, path, err)
	}

	// Verb output shares stdout with text results only.
	var out io.Writer = cmd.OutOrStdout()
	if opts.Format == "json" {
		out = cmd.ErrOrStderr()
	}

	x := &executor{cfg: cfg, out: out, logger: logger}
	if cfg.Database != "" {
		logger.Debug("opening database", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		x.store = st
		x.runIDs = opts.RunIDGenerator
		if x.runIDs == nil {
			x.runIDs = store.UUIDv7Generator{}
		}
	}

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	exec, err := x.execute(ctx, src, cfg.Cycles)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run failed", err)
	}
	return outputExecution(formatter, exec)
}

// signalContext derives a context cancelled by SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after this cycle", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func outputExecution(formatter *OutputFormatter, exec *Execution) error {
	if exec.Err != nil && compiler.IsParseError(exec.Err) {
		return parseExitError(formatter, exec.Err)
	}

	if exec.Err != nil {
		if formatter.Format == "json" {
			if err := formatter.Response(CLIResponse{
				Status: "error",
				Data:   exec,
				Error:  &CLIError{Code: errorCode(exec.Err), Message: exec.Err.Error()},
				RunID:  exec.RunID,
			}); err != nil {
				return err
			}
		} else {
			_ = formatter.Error(errorCode(exec.Err), exec.Err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "machine faulted", exec.Err)
	}

	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: exec, RunID: exec.RunID})
	}
	formatter.VerboseLog("%d cycle(s), %d firing(s), %d active rule(s)", exec.Cycles, exec.Firings, exec.Active)
	if exec.RunID != "" {
		formatter.VerboseLog("recorded run %s", exec.RunID)
	}
	return nil
}
