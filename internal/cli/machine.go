package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/engine"
	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
	"github.com/roach88/kdl/internal/store"
)

// MachineFlags are the flags that shape a machine, shared by run, check
// and replay. Flags override the --config file.
type MachineFlags struct {
	Config      string
	Vars        []string
	DefaultVerb string
}

func (f *MachineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Config, "config", "", "CUE configuration file")
	cmd.Flags().StringArrayVar(&f.Vars, "var", nil, "set a variable before loading (name=value, repeatable)")
	cmd.Flags().StringVar(&f.DefaultVerb, "default-verb", "", "answer unregistered verbs (log|fail)")
}

// resolve loads the config file, if any, and applies flag overrides.
func (f *MachineFlags) resolve() (*Config, error) {
	cfg := DefaultConfig()
	if f.Config != "" {
		loaded, err := LoadConfig(f.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.DefaultVerb != "" {
		if err := checkDefaultVerb(f.DefaultVerb); err != nil {
			return nil, err
		}
		cfg.DefaultVerb = f.DefaultVerb
	}
	if err := ApplyVarFlags(cfg, f.Vars); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configExitError reports a config or flag problem as a command error.
func configExitError(formatter *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid configuration", err)
}

// newLogger builds the CLI logger: text records on w, Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// readProgram reads program source from path, or stdin for "-".
func readProgram(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// programExitError reports an unreadable program as a command error.
func programExitError(formatter *OutputFormatter, path string, err error) error {
	_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("reading program: %v", err), nil)
	return WrapExitError(ExitCommandError, "failed to read program "+path, err)
}

// parseExitError reports a parse error with its position.
func parseExitError(formatter *OutputFormatter, err error) error {
	var pe *compiler.ParseError
	if errors.As(err, &pe) {
		_ = formatter.Error(string(pe.Code), pe.Message, map[string]int{
			"line":   pe.Line,
			"column": pe.Column,
			"pos":    pe.Pos,
		})
	} else {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	}
	return WrapExitError(ExitCommandError, "parse failed", err)
}

// newMachine creates a machine from cfg with the host verbs, declared echo
// verbs, default verb and variables installed. Verb output goes to out.
func newMachine(cfg *Config, out io.Writer, logger *slog.Logger, opts ...engine.Option) (*engine.Machine, error) {
	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxActiveRules(cfg.Limits.MaxActiveRules),
		engine.WithParseOptions(cfg.Limits.ParseOptions()),
		engine.WithPrecision(cfg.VarPrecision, cfg.VerbPrecision),
	}
	m, err := engine.New(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := installHost(m, cfg, out, logger); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func installHost(m *engine.Machine, cfg *Config, out io.Writer, logger *slog.Logger) error {
	if err := hostlib.Register(m, out); err != nil {
		return err
	}
	for name, decl := range cfg.Verbs {
		if err := m.AddVerb(name, hostlib.Echo(out, decl.Params, decl.Validate)); err != nil {
			return fmt.Errorf("verb %q: %w", name, err)
		}
	}

	def, ok, err := hostlib.DefaultVerb(cfg.DefaultVerb, logger)
	if err != nil {
		return err
	}
	if ok {
		if err := m.AddDefaultVerb(def); err != nil {
			return err
		}
	}

	for name, v := range cfg.Vars {
		if err := m.Set(name, v); err != nil {
			return fmt.Errorf("var %q: %w", name, err)
		}
	}
	return nil
}

// firingCounter is a Tracer that only counts dispatches.
type firingCounter struct {
	firings int
}

func (c *firingCounter) Fired(engine.Firing) error {
	c.firings++
	return nil
}

func (c *firingCounter) CycleComplete(int64, int) error {
	return nil
}

// Execution is the outcome of one run of a program.
type Execution struct {
	RunID   string              `json:"run_id,omitempty"`
	Cycles  int64               `json:"cycles"`
	Firings int                 `json:"firings"`
	Active  int                 `json:"active"`
	Vars    map[string]ir.Value `json:"-"`

	// Err is the parse or runtime error that stopped the run.
	Err error `json:"-"`
}

// MarshalJSON renders vars in the tagged canonical value encoding.
func (e *Execution) MarshalJSON() ([]byte, error) {
	vars, err := ir.MarshalCanonical(e.Vars)
	if err != nil {
		return nil, err
	}
	type plain Execution
	return json.Marshal(struct {
		*plain
		Vars json.RawMessage `json:"vars"`
	}{(*plain)(e), vars})
}

// executor runs programs on machines built from one Config, optionally
// recording each run into a trace store.
type executor struct {
	cfg    *Config
	out    io.Writer
	logger *slog.Logger
	store  *store.Store // nil disables recording
	runIDs store.RunIDGenerator
}

// execute parses src, runs it for cycles cycles and returns what happened.
// Parse and runtime errors are reported in Execution.Err; the returned
// error is reserved for store and setup failures. Cancelling ctx stops the
// run between cycles.
func (x *executor) execute(ctx context.Context, src string, cycles int) (*Execution, error) {
	prog, err := compiler.Parse(src, x.cfg.Limits.ParseOptions())
	if err != nil {
		return &Execution{Err: err}, nil
	}

	exec := &Execution{}
	counter := &firingCounter{}
	tracers := []engine.Tracer{counter}

	var hash string
	if x.store != nil {
		exec.RunID = x.runIDs.Generate()
		hash, err = ir.ProgramHash(prog)
		if err != nil {
			return nil, fmt.Errorf("hashing program: %w", err)
		}
		tracers = append(tracers, store.NewRecorder(ctx, x.store, exec.RunID))
	}

	m, err := newMachine(x.cfg, x.out, x.logger, engine.WithTracer(engine.MultiTracer(tracers...)))
	if err != nil {
		return nil, fmt.Errorf("creating machine: %w", err)
	}
	defer m.Close()

	if err := m.LoadProgram(prog, src); err != nil {
		exec.Err = err
		exec.Vars = m.Snapshot()
		return exec, nil
	}

	if x.store != nil {
		if err := x.store.BeginRun(ctx, store.Run{
			ID:            exec.RunID,
			ProgramHash:   hash,
			Source:        src,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		}); err != nil {
			return nil, err
		}
	}

	x.logger.Debug("run starting", "run_id", exec.RunID, "rules", prog.Len(), "cycles", cycles)

	for i := 0; i < cycles; i++ {
		if err := ctx.Err(); err != nil {
			x.logger.Info("run interrupted", "cycle", m.Cycle())
			break
		}
		if err := m.Run(); err != nil {
			exec.Err = err
			break
		}
	}

	exec.Cycles = m.Cycle()
	if exec.Err != nil {
		exec.Cycles--
	}
	exec.Firings = counter.firings
	exec.Active = len(m.Active())
	exec.Vars = m.Snapshot()

	if x.store != nil {
		if err := x.store.FinishRun(ctx, exec.RunID, exec.Cycles, exec.Vars, exec.Err); err != nil {
			return nil, err
		}
	}

	x.logger.Debug("run finished",
		"run_id", exec.RunID,
		"cycles", exec.Cycles,
		"firings", exec.Firings,
		"error", exec.Err,
	)
	return exec, nil
}

// errorCode returns the parse or runtime code carried by err.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	if code := compiler.CodeOf(err); code != "" {
		return string(code)
	}
	return ErrCodeGeneric
}
