// Package hostlib provides the host verbs the kdl command-line driver and
// test harness install on a machine.
//
// The verbs are ordinary engine.Verb values; embedding hosts are free to
// register their own instead.
package hostlib

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/kdl/internal/engine"
	"github.com/roach88/kdl/internal/ir"
)

// Verb names registered by Register.
const (
	VerbPrint = "print"
	VerbSet   = "set"
	VerbIncr  = "incr"
)

// Register installs print, set and incr on m. print writes to w.
func Register(m *engine.Machine, w io.Writer) error {
	verbs := map[string]engine.Verb{
		VerbPrint: Print(w),
		VerbSet:   Set(),
		VerbIncr:  Incr(),
	}
	for _, name := range []string{VerbPrint, VerbSet, VerbIncr} {
		if err := m.AddVerb(name, verbs[name]); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// FormatParams renders params space separated, as print writes them.
func FormatParams(params []ir.Value) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = ir.Format(p)
	}
	return strings.Join(parts, " ")
}

// Print writes its parameters on one line.
func Print(w io.Writer) engine.Verb {
	return engine.Verb{
		Func: func(_ *engine.Machine, _, _ string, params []ir.Value) error {
			_, err := fmt.Fprintln(w, FormatParams(params))
			return err
		},
	}
}

// Set stores its second parameter in the variable named by the first,
// resolved in the calling rule's context:
//
//	(door: ? set [open] 1)    # sets "door open"
func Set() engine.Verb {
	return engine.Verb{
		Func: func(m *engine.Machine, context, _ string, params []ir.Value) error {
			if len(params) != 2 {
				return fmt.Errorf("set takes a name and a value, got %d parameters", len(params))
			}
			name, ok := params[0].(ir.Str)
			if !ok {
				return engine.NewTypeMismatch("set name", ir.KindString, ir.KindOf(params[0]))
			}
			return m.SetVar(context, string(name), params[1])
		},
	}
}

// Incr adds its optional second parameter (default 1) to the variable named
// by the first. The sum follows expression promotion: an Int stays Int
// unless a Float is involved.
func Incr() engine.Verb {
	return engine.Verb{
		Func: func(m *engine.Machine, context, _ string, params []ir.Value) error {
			if len(params) < 1 || len(params) > 2 {
				return fmt.Errorf("incr takes a name and an optional step, got %d parameters", len(params))
			}
			name, ok := params[0].(ir.Str)
			if !ok {
				return engine.NewTypeMismatch("incr name", ir.KindString, ir.KindOf(params[0]))
			}
			var step ir.Value = ir.Int(1)
			if len(params) == 2 {
				step = params[1]
			}

			full := engine.FullName(context, string(name))
			cur, err := m.Get(full)
			if err != nil {
				return err
			}
			sum, err := add(cur, step)
			if err != nil {
				return err
			}
			return m.Set(full, sum)
		},
	}
}

func add(a, b ir.Value) (ir.Value, error) {
	switch x := a.(type) {
	case ir.Int:
		switch y := b.(type) {
		case ir.Int:
			return x + y, nil
		case ir.Float:
			return ir.Float(x) + y, nil
		}
	case ir.Float:
		switch y := b.(type) {
		case ir.Int:
			return x + ir.Float(y), nil
		case ir.Float:
			return x + y, nil
		}
	default:
		return nil, engine.NewTypeMismatch("incr target", ir.KindInt, ir.KindOf(a))
	}
	return nil, engine.NewTypeMismatch("incr step", ir.KindInt, ir.KindOf(b))
}

// Echo returns a verb that writes "name(context): params" for every call.
// The CLI uses it for verbs declared in configuration.
func Echo(w io.Writer, params []ir.Kind, validate bool) engine.Verb {
	return engine.Verb{
		Func: func(_ *engine.Machine, context, name string, p []ir.Value) error {
			_, err := fmt.Fprintf(w, "%s(%s): %s\n", name, context, FormatParams(p))
			return err
		},
		Params:   params,
		Validate: validate,
	}
}

// Default verb names accepted by DefaultVerb.
const (
	DefaultLog  = "log"
	DefaultFail = "fail"
)

// LogDefault answers unregistered verbs by logging the call at Info.
func LogDefault(logger *slog.Logger) engine.Verb {
	return engine.Verb{
		Func: func(_ *engine.Machine, context, name string, params []ir.Value) error {
			logger.Info("unhandled verb",
				"verb", name,
				"context", context,
				"params", FormatParams(params),
			)
			return nil
		},
	}
}

// FailDefault answers unregistered verbs with an error, which aborts the
// cycle as VERB_FAILED.
func FailDefault() engine.Verb {
	return engine.Verb{
		Func: func(_ *engine.Machine, _, name string, _ []ir.Value) error {
			return fmt.Errorf("no handler for verb %q", name)
		},
	}
}

// DefaultVerb resolves a default verb by name. The empty name means none.
func DefaultVerb(name string, logger *slog.Logger) (engine.Verb, bool, error) {
	switch name {
	case "":
		return engine.Verb{}, false, nil
	case DefaultLog:
		return LogDefault(logger), true, nil
	case DefaultFail:
		return FailDefault(), true, nil
	}
	return engine.Verb{}, false, fmt.Errorf("unknown default verb %q (want %q or %q)", name, DefaultLog, DefaultFail)
}
