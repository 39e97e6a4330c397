package compiler

import (
	"fmt"

	"github.com/roach88/kdl/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Structural errors (E100-E109)
	ErrStackUnbalanced = "E101" // expression does not leave exactly one value
	ErrRuleRefRange    = "E102" // root or child id outside the arena
	ErrRuleShared      = "E103" // rule reachable more than once, or not at all
	ErrUnknownOp       = "E104" // opcode outside the instruction set

	// Verb signature errors (E110-E119)
	ErrUnknownVerb = "E110" // verb not declared and no default verb
	ErrParamCount  = "E111" // wrong number of parameters for a validating verb
	ErrParamKind   = "E112" // literal parameter of the wrong kind
)

// ValidationError represents a static check failure on a compiled program.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Signature declares what a host verb accepts.
type Signature struct {
	Params   []ir.Kind
	Validate bool
}

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// Source, when set, is used to attach line numbers to errors.
	Source string

	// Verbs enables verb checks. Nil skips them entirely.
	Verbs map[string]Signature

	// DefaultVerb suppresses ErrUnknownVerb, as a default verb answers
	// every undeclared name at run time.
	DefaultVerb bool
}

// Validate checks a compiled program. Parse already guarantees these
// properties for its own output; Validate also covers hand-built programs
// and, given verb signatures, catches parameter mistakes before running.
// Returns all errors found (does not fail-fast).
func Validate(p *ir.Program, opts ValidateOptions) []ValidationError {
	v := &validator{prog: p, opts: opts, seen: make([]int, len(p.Rules))}

	for i, id := range p.Root {
		v.visit(id, fmt.Sprintf("root[%d]", i))
	}
	for id, n := range v.seen {
		if n == 0 {
			v.add(ErrRuleShared, fmt.Sprintf("rules[%d]", id), p.Rules[id].Pos,
				"rule is not reachable from the root program")
		}
	}
	return v.errs
}

type validator struct {
	prog *ir.Program
	opts ValidateOptions
	seen []int
	errs []ValidationError
}

func (v *validator) add(code, field string, pos int, format string, args ...any) {
	e := ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code}
	if v.opts.Source != "" {
		e.Line, _ = LineCol(v.opts.Source, pos)
	}
	v.errs = append(v.errs, e)
}

func (v *validator) visit(id ir.RuleID, field string) {
	if id < 0 || int(id) >= len(v.prog.Rules) {
		v.add(ErrRuleRefRange, field, 0, "rule id %d outside arena of %d rules", id, len(v.prog.Rules))
		return
	}
	v.seen[id]++
	if v.seen[id] > 1 {
		v.add(ErrRuleShared, field, v.prog.Rules[id].Pos, "rule %d is referenced more than once", id)
		return
	}

	r := &v.prog.Rules[id]
	path := fmt.Sprintf("rules[%d]", id)
	if len(r.Guard) > 0 {
		v.checkCompute(r.Guard, path+".guard")
	}
	for i, param := range r.Action.Params {
		v.checkCompute(param, fmt.Sprintf("%s.params[%d]", path, i))
	}
	v.checkVerb(&r.Action, path)

	for i, child := range r.Action.Child {
		v.visit(child, fmt.Sprintf("%s.child[%d]", path, i))
	}
}

// checkCompute simulates stack depth: pushes add one, binary ops net
// minus one, unary ops leave depth unchanged.
func (v *validator) checkCompute(c ir.Compute, field string) {
	depth := 0
	for _, op := range c {
		switch {
		case op.Code.IsPush():
			depth++
		case op.Code.IsUnary():
			if depth < 1 {
				v.add(ErrStackUnbalanced, field, op.Pos, "%s underflows the stack", op.Code)
				return
			}
		case op.Code >= ir.OpAdd && op.Code <= ir.OpOr:
			if depth < 2 {
				v.add(ErrStackUnbalanced, field, op.Pos, "%s underflows the stack", op.Code)
				return
			}
			depth--
		default:
			v.add(ErrUnknownOp, field, op.Pos, "unknown opcode %s", op.Code)
			return
		}
	}
	if depth != 1 {
		v.add(ErrStackUnbalanced, field, 0, "expression leaves %d values, want 1", depth)
	}
}

func (v *validator) checkVerb(a *ir.Action, path string) {
	if v.opts.Verbs == nil || a.Verb == "" {
		return
	}
	sig, ok := v.opts.Verbs[a.Verb]
	if !ok {
		if !v.opts.DefaultVerb {
			v.add(ErrUnknownVerb, path+".verb", a.Pos, "verb %q is not defined", a.Verb)
		}
		return
	}
	if !sig.Validate {
		return
	}
	if len(a.Params) != len(sig.Params) {
		v.add(ErrParamCount, path+".params", a.Pos,
			"verb %q takes %d parameters, got %d", a.Verb, len(sig.Params), len(a.Params))
		return
	}
	for i, param := range a.Params {
		kind, ok := literalKind(param)
		if ok && kind != sig.Params[i] {
			v.add(ErrParamKind, fmt.Sprintf("%s.params[%d]", path, i), param[0].Pos,
				"verb %q parameter %d must be %s, got %s literal", a.Verb, i, sig.Params[i], kind)
		}
	}
}

// literalKind reports the kind of a parameter that is a single literal.
// Anything else depends on run-time values.
func literalKind(c ir.Compute) (ir.Kind, bool) {
	if len(c) != 1 {
		return ir.KindNil, false
	}
	switch c[0].Code {
	case ir.OpPushInt:
		return ir.KindInt, true
	case ir.OpPushFloat, ir.OpPushPercent:
		return ir.KindFloat, true
	case ir.OpPushString:
		return ir.KindString, true
	}
	return ir.KindNil, false
}
