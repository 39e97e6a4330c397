package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	MachineFlags
	Database string
	RunID    string // empty means the latest run

	// RunIDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator store.RunIDGenerator
}

// ReplayResult holds the outcome of re-executing one recorded run.
type ReplayResult struct {
	RunID         string          `json:"run_id"`
	ReplayID      string          `json:"replay_id"`
	Cycles        int64           `json:"cycles"`
	Firings       int             `json:"firings"`
	Status        store.RunStatus `json:"status"`
	ReplayStatus  store.RunStatus `json:"replay_status"`
	Deterministic bool            `json:"deterministic"`
	Divergence    string          `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-execute a recorded run and verify determinism",
		Long: `Re-execute a run recorded with "kdl run --db" and compare the traces.

The recorded program source runs again on a fresh machine for the same
number of cycles (one more when the run faulted, to reach the fault). The
new run is recorded into the same database and its firings must match the
original one for one: cycle, sequence, rule, context, verb, params.

Pass the --config and --var flags the original run used; variables are
inputs to the program and are not stored with the run.

Exit codes:
  0 - Replay matched the recorded run
  1 - The traces diverged
  2 - Command error (database or run not found, etc.)

Examples:
  kdl replay --db ./kdl.db
  kdl replay --db ./kdl.db --run 0190a5c2-... --config kdl.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	opts.MachineFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to replay (default: latest)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := opts.MachineFlags.resolve()
	if err != nil {
		return configExitError(formatter, err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	original, err := findRun(ctx, st, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find run", err)
	}
	formatter.VerboseLog("Replaying run %s (%d cycle(s), %s)", original.ID, original.Cycles, original.Status)

	cycles := original.Cycles
	if original.Status == store.RunFaulted {
		cycles++
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	x := &executor{cfg: cfg, out: io.Discard, logger: logger, store: st, runIDs: gen}

	exec, err := x.execute(ctx, original.Source, int(cycles))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	replayed, err := st.ReadRun(ctx, exec.RunID)
	if errors.Is(err, store.ErrRunNotFound) && exec.Err != nil {
		// Nothing is recorded when the source fails to load, e.g. under
		// tighter parser limits than the original run had.
		_ = formatter.Error(errorCode(exec.Err), exec.Err.Error(), nil)
		return WrapExitError(ExitCommandError, "recorded program does not load", exec.Err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read replay", err)
	}

	result := ReplayResult{
		RunID:        original.ID,
		ReplayID:     replayed.ID,
		Cycles:       replayed.Cycles,
		Firings:      exec.Firings,
		Status:       original.Status,
		ReplayStatus: replayed.Status,
	}

	divergence, err := st.CompareRuns(ctx, original.ID, replayed.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare runs", err)
	}
	switch {
	case divergence != nil:
		result.Divergence = divergence.String()
	case original.Status != replayed.Status:
		result.Divergence = fmt.Sprintf("status %s != %s", original.Status, replayed.Status)
	case original.Cycles != replayed.Cycles:
		result.Divergence = fmt.Sprintf("cycles %d != %d", original.Cycles, replayed.Cycles)
	}
	result.Deterministic = result.Divergence == ""

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result, RunID: result.ReplayID}
	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "replay diverged: " + result.Divergence,
		}
	}

	if err := formatter.Response(response); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Run:    %s (%s)\n", result.RunID, result.Status)
	fmt.Fprintf(w, "Replay: %s (%s)\n", result.ReplayID, result.ReplayStatus)
	fmt.Fprintf(w, "  %d cycle(s), %d firing(s)\n", result.Cycles, result.Firings)
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay matches recorded run")
		return nil
	}

	fmt.Fprintf(w, "  Divergence: %s\n", result.Divergence)
	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
