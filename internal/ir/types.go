package ir

import "fmt"

// OpCode is one compiled stack instruction.
type OpCode int

const (
	OpNoop OpCode = iota
	OpPushInt
	OpPushFloat
	OpPushString
	OpPushPercent
	OpPushVar
	OpAdd
	OpSub
	OpDiv
	OpMul
	OpEqu
	OpLeq // less than or equal
	OpGeq // greater than or equal
	OpLth
	OpGth
	OpAnd
	OpOr
	OpNot
)

var opNames = [...]string{
	OpNoop:        "noop",
	OpPushInt:     "pint",
	OpPushFloat:   "pfloat",
	OpPushString:  "pstr",
	OpPushPercent: "pperc",
	OpPushVar:     "pvar",
	OpAdd:         "add",
	OpSub:         "sub",
	OpDiv:         "div",
	OpMul:         "mul",
	OpEqu:         "equ",
	OpLeq:         "leq",
	OpGeq:         "geq",
	OpLth:         "lth",
	OpGth:         "gth",
	OpAnd:         "and",
	OpOr:          "or",
	OpNot:         "not",
}

func (c OpCode) String() string {
	if c < 0 || int(c) >= len(opNames) {
		return fmt.Sprintf("OpCode(%d)", int(c))
	}
	return opNames[c]
}

// IsPush reports whether the op pushes a literal or variable.
func (c OpCode) IsPush() bool {
	return c >= OpPushInt && c <= OpPushVar
}

// IsUnary reports whether the op pops exactly one operand.
func (c OpCode) IsUnary() bool {
	return c == OpNot
}

// Op is one compiled instruction.
type Op struct {
	Code OpCode

	// Value is the literal payload of push-int/float/string/percent ops.
	// Percent literals are stored already scaled (50% is Float(0.5)).
	Value Value

	// Name is the local variable name of an OpPushVar.
	Name string

	// Context is the resolved lookup prefix of an OpPushVar. It is ignored
	// when Global is set.
	Context string
	Global  bool

	// Pos is the byte offset of the source token.
	Pos int
}

// FullName returns the variable name an OpPushVar resolves to.
func (o Op) FullName() string {
	if o.Global {
		return o.Name
	}
	return JoinName(o.Context, o.Name)
}

// String renders the op for disassembly.
func (o Op) String() string {
	switch o.Code {
	case OpPushVar:
		if o.Global {
			return fmt.Sprintf("pvar {%s}", o.Name)
		}
		return fmt.Sprintf("pvar %q", o.FullName())
	case OpPushString:
		return fmt.Sprintf("pstr %q", Format(o.Value))
	case OpPushInt, OpPushFloat, OpPushPercent:
		return fmt.Sprintf("%s %s", o.Code, Format(o.Value))
	default:
		return o.Code.String()
	}
}

// JoinName builds a variable's full name from its context and local name.
// An empty context yields the bare local name.
func JoinName(context, name string) string {
	if context == "" {
		return name
	}
	return context + " " + name
}

// Compute is an expression compiled to postfix order. An empty Compute
// as a rule guard means "always true".
type Compute []Op

// Action is a single verb invocation and the child rules it unlocks.
type Action struct {
	// Context is the space-joined mark chain enclosing the action.
	Context string

	// Verb is empty for a mark-only action, which dispatches nothing and
	// only unlocks Child.
	Verb   string
	Params []Compute

	// Child lists the rules (arena indices) unlocked when the action fires.
	Child []RuleID

	Pos int
}

// RuleID indexes a Rule in its Program's arena.
type RuleID int

// Rule is a guard plus an action; the unit of scheduling.
type Rule struct {
	Guard  Compute
	Action Action
	Pos    int
}

// Program is an arena of rules. Root lists the start program; every
// Action.Child refers back into Rules.
type Program struct {
	Rules []Rule
	Root  []RuleID
}

// Rule returns the rule with the given id.
func (p *Program) Rule(id RuleID) *Rule {
	return &p.Rules[id]
}

// Len returns the number of rules in the arena, across all nesting levels.
func (p *Program) Len() int {
	return len(p.Rules)
}
