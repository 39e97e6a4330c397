package compiler

import "github.com/roach88/kdl/internal/ir"

// Operator precedence levels. Only the relative order matters.
//
// Every operator has its own level, so DIV binds tighter than MUL and SUB
// tighter than ADD. "2 * 3 / 4" compiles to "2 3 4 / *" and evaluates to 0
// in Int arithmetic, not 1. ADD and SUB give the same result either way.
const (
	precOr  = 1
	precAnd = 2
	precCmp = 3
	precAdd = 4
	precSub = 5
	precMul = 6
	precDiv = 7
	precNot = 8

	maxPrec = precNot
)

// element is one item of an infix expression. A value has prec == 0 and
// precChange == 0. A parenthesis carries only precChange (+1 or -1); it
// shifts every following operator by one precedence stride instead of
// being pushed itself.
type element[T any] struct {
	data       T
	prec       int
	precChange int
	prefix     bool // unary operator written before its operand
}

type level[T any] struct {
	realPrec int
	data     T
}

// infixToPostfix reorders an infix element list into postfix in one pass.
//
// The effective precedence of an operator is its base precedence plus the
// paren depth times (maxPrec + 1), so anything inside a deeper paren
// outranks everything outside it. A binary operator first emits every held
// operator of greater or equal effective precedence, which makes equal
// operators left-associative. Prefix operators never emit on arrival since
// nothing before them is their operand.
func infixToPostfix[T any](input []element[T], maxPrec int) []T {
	if len(input) == 0 {
		return nil
	}
	stride := maxPrec + 1
	currentPrec := 0

	out := make([]T, 0, len(input))
	var levels []level[T]

	for _, e := range input {
		switch {
		case e.precChange != 0:
			currentPrec += e.precChange * stride
		case e.prec > 0:
			realPrec := e.prec + currentPrec
			if !e.prefix {
				for len(levels) > 0 && levels[len(levels)-1].realPrec >= realPrec {
					out = append(out, levels[len(levels)-1].data)
					levels = levels[:len(levels)-1]
				}
			}
			levels = append(levels, level[T]{realPrec: realPrec, data: e.data})
		default:
			out = append(out, e.data)
		}
	}

	for len(levels) > 0 {
		out = append(out, levels[len(levels)-1].data)
		levels = levels[:len(levels)-1]
	}
	return out
}

// binaryOps maps control tokens to operators and their base precedence.
var binaryOps = map[string]struct {
	code ir.OpCode
	prec int
}{
	"+":  {ir.OpAdd, precAdd},
	"-":  {ir.OpSub, precSub},
	"*":  {ir.OpMul, precMul},
	"/":  {ir.OpDiv, precDiv},
	"=":  {ir.OpEqu, precCmp},
	"<":  {ir.OpLth, precCmp},
	">":  {ir.OpGth, precCmp},
	"<=": {ir.OpLeq, precCmp},
	">=": {ir.OpGeq, precCmp},
	",":  {ir.OpAnd, precAnd},
	";":  {ir.OpOr, precOr},
}
