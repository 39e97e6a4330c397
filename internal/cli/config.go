package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/kdl/internal/compiler"
	"github.com/roach88/kdl/internal/hashmap"
	"github.com/roach88/kdl/internal/hostlib"
	"github.com/roach88/kdl/internal/ir"
)

// configSchema is the contract every --config file is unified with.
// Precision bounds match hashmap.MaxPrecision.
const configSchema = `
#Kind: "int" | "float" | "string"

#Config: {
	cycles?: int & >=0
	precision?: {
		vars?:  int & >=0 & <=24
		verbs?: int & >=0 & <=24
	}
	limits?: {
		maxActiveRules?:  int & >=0
		maxExpression?:   int & >=0
		maxContextDepth?: int & >=0
		maxParams?:       int & >=0
	}
	vars?: [string]: int | float | string
	verbs?: [string]: {
		params?: [...#Kind]
		validate?: bool
	}
	defaultVerb?: "log" | "fail"
	db?: string
}
`

// Config drives a machine built by the CLI.
type Config struct {
	Cycles int

	// VarPrecision and VerbPrecision size the machine's hash tables.
	VarPrecision  int
	VerbPrecision int

	Limits Limits

	// Vars are set before the program loads.
	Vars map[string]ir.Value

	// Verbs are installed as echo verbs (hostlib.Echo).
	Verbs map[string]VerbConfig

	// DefaultVerb is "", hostlib.DefaultLog or hostlib.DefaultFail.
	DefaultVerb string

	// Database is the trace database path; empty disables recording.
	Database string
}

// Limits caps machine and parser buffers. Zero means unlimited.
type Limits struct {
	MaxActiveRules  int
	MaxExpression   int
	MaxContextDepth int
	MaxParams       int
}

// VerbConfig declares one echo verb.
type VerbConfig struct {
	Params   []ir.Kind
	Validate bool
}

// ParseOptions returns the parser limits.
func (l Limits) ParseOptions() compiler.Options {
	return compiler.Options{
		MaxExpression:   l.MaxExpression,
		MaxContextDepth: l.MaxContextDepth,
		MaxParams:       l.MaxParams,
	}
}

// DefaultConfig returns the configuration used without --config.
func DefaultConfig() *Config {
	return &Config{
		Cycles:        1,
		VarPrecision:  hashmap.DefaultPrecision,
		VerbPrecision: hashmap.DefaultPrecision,
		Vars:          map[string]ir.Value{},
		Verbs:         map[string]VerbConfig{},
	}
}

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadConfig reads a CUE configuration file. Fields the file omits keep
// their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}
	}
	return ParseConfig(data, path)
}

// ParseConfig validates CUE source against #Config and extracts it.
// filename is used in error positions only.
func ParseConfig(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeConfigSyntax, err)
	}

	value = schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeConfigSchema, err)
	}

	cfg := DefaultConfig()
	if err := extractConfig(value, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractConfig(value cue.Value, cfg *Config) error {
	ints := []struct {
		path string
		dst  *int
	}{
		{"cycles", &cfg.Cycles},
		{"precision.vars", &cfg.VarPrecision},
		{"precision.verbs", &cfg.VerbPrecision},
		{"limits.maxActiveRules", &cfg.Limits.MaxActiveRules},
		{"limits.maxExpression", &cfg.Limits.MaxExpression},
		{"limits.maxContextDepth", &cfg.Limits.MaxContextDepth},
		{"limits.maxParams", &cfg.Limits.MaxParams},
	}
	for _, f := range ints {
		v := value.LookupPath(cue.ParsePath(f.path))
		if !v.Exists() {
			continue
		}
		n, err := v.Int64()
		if err != nil {
			return cueLoadError(ErrCodeConfigSchema, err)
		}
		if int64(int(n)) != n {
			return &LoadError{Code: ErrCodeConfigSchema, Message: fmt.Sprintf("%s: %d out of range", f.path, n), Pos: v.Pos()}
		}
		*f.dst = int(n)
	}

	for _, f := range []struct {
		path string
		dst  *string
	}{
		{"defaultVerb", &cfg.DefaultVerb},
		{"db", &cfg.Database},
	} {
		v := value.LookupPath(cue.ParsePath(f.path))
		if !v.Exists() {
			continue
		}
		s, err := v.String()
		if err != nil {
			return cueLoadError(ErrCodeConfigSchema, err)
		}
		*f.dst = s
	}

	if err := extractVars(value.LookupPath(cue.ParsePath("vars")), cfg); err != nil {
		return err
	}
	return extractVerbs(value.LookupPath(cue.ParsePath("verbs")), cfg)
}

func extractVars(vars cue.Value, cfg *Config) error {
	if !vars.Exists() {
		return nil
	}
	iter, err := vars.Fields()
	if err != nil {
		return cueLoadError(ErrCodeConfigSchema, err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		v, err := cueValue(iter.Value())
		if err != nil {
			return &LoadError{Code: ErrCodeConfigSchema, Message: fmt.Sprintf("vars[%q]: %v", name, err), Pos: iter.Value().Pos()}
		}
		cfg.Vars[name] = v
	}
	return nil
}

func cueValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return ir.Int(n), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return ir.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, err
		}
		return ir.Str(s), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", v.Kind())
}

func extractVerbs(verbs cue.Value, cfg *Config) error {
	if !verbs.Exists() {
		return nil
	}
	iter, err := verbs.Fields()
	if err != nil {
		return cueLoadError(ErrCodeConfigSchema, err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		var decl VerbConfig

		if params := iter.Value().LookupPath(cue.ParsePath("params")); params.Exists() {
			list, err := params.List()
			if err != nil {
				return cueLoadError(ErrCodeConfigSchema, err)
			}
			decl.Params = []ir.Kind{}
			for list.Next() {
				s, err := list.Value().String()
				if err != nil {
					return cueLoadError(ErrCodeConfigSchema, err)
				}
				kind, err := ir.ParseKind(s)
				if err != nil {
					return &LoadError{Code: ErrCodeConfigSchema, Message: fmt.Sprintf("verbs[%q]: %v", name, err), Pos: list.Value().Pos()}
				}
				decl.Params = append(decl.Params, kind)
			}
		}

		if validate := iter.Value().LookupPath(cue.ParsePath("validate")); validate.Exists() {
			b, err := validate.Bool()
			if err != nil {
				return cueLoadError(ErrCodeConfigSchema, err)
			}
			decl.Validate = b
		}
		cfg.Verbs[name] = decl
	}
	return nil
}

// cueLoadError converts the first CUE error to a LoadError with its
// position.
func cueLoadError(code string, err error) *LoadError {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	loadErr := &LoadError{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

// ApplyVarFlags parses repeated --var name=value flags into cfg.Vars.
// Values parse as Int, then Float; anything else is a string. A value
// in square brackets is always a string, as in program source.
func ApplyVarFlags(cfg *Config, flags []string) error {
	for _, flag := range flags {
		name, raw, ok := strings.Cut(flag, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return &LoadError{Code: ErrCodeBadFlag, Message: fmt.Sprintf("--var %q: want name=value", flag)}
		}
		cfg.Vars[name] = parseVarValue(raw)
	}
	return nil
}

func parseVarValue(raw string) ir.Value {
	if len(raw) >= 2 && raw[0] == '[' && raw[len(raw)-1] == ']' {
		return ir.Str(raw[1 : len(raw)-1])
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.Int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return ir.Float(f)
	}
	return ir.Str(raw)
}

// checkDefaultVerb rejects unknown default verb names from flags. Config
// files are already limited by the schema.
func checkDefaultVerb(name string) error {
	if _, _, err := hostlib.DefaultVerb(name, nil); err != nil {
		return &LoadError{Code: ErrCodeBadFlag, Message: err.Error()}
	}
	return nil
}
