package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
	"github.com/roach88/kdl/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // empty means the latest run
	Verb     string // optional - filter to one verb
	List     bool
}

// TraceEvent is one firing in the trace timeline.
type TraceEvent struct {
	ID      string          `json:"id"`
	Cycle   int64           `json:"cycle"`
	Seq     int64           `json:"seq"`
	Rule    ir.RuleID       `json:"rule"`
	Context string          `json:"context,omitempty"`
	Verb    string          `json:"verb"`
	Params  json.RawMessage `json:"params"`
	Default bool            `json:"default,omitempty"`

	text string // params rendered as print writes them
}

// RunSummary describes a recorded run.
type RunSummary struct {
	ID          string          `json:"id"`
	ProgramHash string          `json:"program_hash"`
	Status      store.RunStatus `json:"status"`
	Cycles      int64           `json:"cycles"`
	Error       string          `json:"error,omitempty"`
}

// CycleStat is the schedule size at the end of one cycle.
type CycleStat struct {
	Cycle  int64 `json:"cycle"`
	Active int   `json:"active"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run      RunSummary      `json:"run"`
	Timeline []TraceEvent    `json:"timeline"`
	Schedule []CycleStat     `json:"schedule"`
	Vars     json.RawMessage `json:"vars"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Firings        int            `json:"firings"`
	DefaultFirings int            `json:"default_firings"`
	ByVerb         map[string]int `json:"by_verb"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a recorded run",
		Long: `Show the firings of a run recorded with "kdl run --db".

The output includes:
- Timeline: every verb dispatch in order, with cycle, rule and params
- Schedule: how many rules were active after each cycle
- Stats: firing counts per verb

Examples:
  kdl trace --db ./kdl.db
  kdl trace --db ./kdl.db --run 0190a5c2-...
  kdl trace --db ./kdl.db --verb print
  kdl trace --db ./kdl.db --list`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show (default: latest)")
	cmd.Flags().StringVar(&opts.Verb, "verb", "", "show only firings of this verb")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs instead")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listRuns(ctx, st, formatter)
	}

	run, err := findRun(ctx, st, opts.RunID)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find run", err)
	}

	var firings []store.Firing
	if opts.Verb != "" {
		firings, err = st.ReadFiringsForVerb(ctx, run.ID, opts.Verb)
	} else {
		firings, err = st.ReadFirings(ctx, run.ID)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firings", err)
	}

	cycles, err := st.ReadCycles(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycles", err)
	}

	result, err := buildTrace(run, firings, cycles)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build trace", err)
	}

	if opts.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(formatter.Writer, result, run.Vars, opts.Verbose)
	return nil
}

// findRun returns the run with the given ID, or the latest run for "".
func findRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		run, err := st.LatestRun(ctx)
		if errors.Is(err, store.ErrRunNotFound) {
			return store.Run{}, errors.New("database has no recorded runs")
		}
		return run, err
	}
	return st.ReadRun(ctx, id)
}

func summarize(run store.Run) RunSummary {
	return RunSummary{
		ID:          run.ID,
		ProgramHash: run.ProgramHash,
		Status:      run.Status,
		Cycles:      run.Cycles,
		Error:       run.Error,
	}
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	summaries := make([]RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = summarize(run)
	}

	if formatter.Format == "json" {
		return formatter.Response(CLIResponse{Status: "ok", Data: summaries})
	}
	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No recorded runs.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%s  %-8s %4d cycle(s)  %s\n", s.ID, s.Status, s.Cycles, truncateID(s.ProgramHash))
	}
	return nil
}

func buildTrace(run store.Run, firings []store.Firing, cycles []store.Cycle) (TraceResult, error) {
	result := TraceResult{
		Run:      summarize(run),
		Timeline: make([]TraceEvent, 0, len(firings)),
		Schedule: make([]CycleStat, 0, len(cycles)),
		Stats:    TraceStats{ByVerb: map[string]int{}},
	}

	for _, f := range firings {
		params, err := ir.MarshalCanonical(f.Params)
		if err != nil {
			return TraceResult{}, fmt.Errorf("firing %s: %w", f.ID, err)
		}
		result.Timeline = append(result.Timeline, TraceEvent{
			ID:      f.ID,
			Cycle:   f.Cycle,
			Seq:     f.Seq,
			Rule:    f.Rule,
			Context: f.Context,
			Verb:    f.Verb,
			Params:  params,
			Default: f.Default,
			text:    hostlib.FormatParams(f.Params),
		})
		result.Stats.Firings++
		result.Stats.ByVerb[f.Verb]++
		if f.Default {
			result.Stats.DefaultFirings++
		}
	}

	for _, c := range cycles {
		result.Schedule = append(result.Schedule, CycleStat{Cycle: c.Cycle, Active: c.Active})
	}

	vars, err := ir.MarshalCanonical(run.Vars)
	if err != nil {
		return TraceResult{}, fmt.Errorf("vars: %w", err)
	}
	result.Vars = vars
	return result, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, vars map[string]ir.Value, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Program: %s\n", truncateID(result.Run.ProgramHash))
	fmt.Fprintf(w, "Status: %s after %d cycle(s)\n", result.Run.Status, result.Run.Cycles)
	if result.Run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Run.Error)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no firings)")
	}
	for _, e := range result.Timeline {
		formatTimelineEvent(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Schedule ===")
	if len(result.Schedule) == 0 {
		fmt.Fprintln(w, "  (no completed cycles)")
	}
	for _, c := range result.Schedule {
		fmt.Fprintf(w, "  cycle %d: %d active\n", c.Cycle, c.Active)
	}
	fmt.Fprintln(w)

	if verbose {
		fmt.Fprintln(w, "=== Variables ===")
		for _, name := range slices.Sorted(maps.Keys(vars)) {
			fmt.Fprintf(w, "  %q = %s %s\n", name, ir.KindOf(vars[name]), ir.Format(vars[name]))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Firings: %d (%d default)\n", result.Stats.Firings, result.Stats.DefaultFirings)
	for _, verb := range slices.Sorted(maps.Keys(result.Stats.ByVerb)) {
		fmt.Fprintf(w, "  %-12s %d\n", verb+":", result.Stats.ByVerb[verb])
	}
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, e TraceEvent, verbose bool) {
	verb := e.Verb
	if e.Context != "" {
		verb += "(" + e.Context + ")"
	}
	if e.Default {
		verb += " [default]"
	}
	fmt.Fprintf(w, "  [%d] cycle %d rule %d %s", e.Seq, e.Cycle, e.Rule, verb)
	if e.text != "" {
		fmt.Fprintf(w, " %s", e.text)
	}
	fmt.Fprintln(w)
	if verbose {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(e.ID))
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
