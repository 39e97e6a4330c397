package engine

import (
	"math"

	"github.com/roach88/kdl/internal/ir"
)

// doCompute evaluates a postfix expression on the machine's value stack.
//
// Arithmetic promotes to Float when either operand is Float; comparisons
// and logic yield Int 0 or 1. Logic operators truncate Float operands
// toward zero before testing them. Strings support only '='.
func (m *Machine) doCompute(c ir.Compute) (ir.Value, error) {
	if err := m.alloc.Alloc(ClassStack, len(c)); err != nil {
		return nil, err
	}
	defer m.alloc.Free(ClassStack, len(c))

	stack := m.stack[:0]
	defer func() { m.stack = stack[:0] }()

	for _, op := range c {
		switch op.Code {
		case ir.OpPushInt, ir.OpPushFloat, ir.OpPushString, ir.OpPushPercent:
			stack = append(stack, op.Value)

		case ir.OpPushVar:
			v, err := m.Get(op.FullName())
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)

		case ir.OpNot:
			if len(stack) < 1 {
				return nil, underflow(op)
			}
			top := len(stack) - 1
			truth, err := truthy(stack[top], op)
			if err != nil {
				return nil, err
			}
			stack[top] = boolInt(!truth)

		default:
			if len(stack) < 2 {
				return nil, underflow(op)
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]
			v, err := binary(op, a, b)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		}
	}

	if len(stack) != 1 {
		return nil, newError(ErrCodeInvariant, "expression left %d values on the stack", len(stack))
	}
	return stack[0], nil
}

func underflow(op ir.Op) error {
	return newError(ErrCodeInvariant, "stack underflow at %s", op.Code)
}

func boolInt(b bool) ir.Value {
	if b {
		return ir.Int(1)
	}
	return ir.Int(0)
}

// truthy tests a logic operand. Float truncates toward zero first.
func truthy(v ir.Value, op ir.Op) (bool, error) {
	switch x := v.(type) {
	case ir.Int:
		return x != 0, nil
	case ir.Float:
		return int64(x) != 0, nil
	default:
		return false, NewTypeMismatch("operand of "+op.Code.String(), ir.KindInt, ir.KindOf(v))
	}
}

func binary(op ir.Op, a, b ir.Value) (ir.Value, error) {
	switch op.Code {
	case ir.OpAnd, ir.OpOr:
		ta, err := truthy(a, op)
		if err != nil {
			return nil, err
		}
		tb, err := truthy(b, op)
		if err != nil {
			return nil, err
		}
		if op.Code == ir.OpAnd {
			return boolInt(ta && tb), nil
		}
		return boolInt(ta || tb), nil
	}

	if sa, ok := a.(ir.Str); ok {
		if sb, ok := b.(ir.Str); ok && op.Code == ir.OpEqu {
			return boolInt(sa == sb), nil
		}
	}
	if !ir.Numeric(a) {
		return nil, NewTypeMismatch("left operand of "+op.Code.String(), ir.KindInt, ir.KindOf(a))
	}
	if !ir.Numeric(b) {
		return nil, NewTypeMismatch("right operand of "+op.Code.String(), ir.KindInt, ir.KindOf(b))
	}

	ia, aInt := a.(ir.Int)
	ib, bInt := b.(ir.Int)
	if aInt && bInt {
		return intOp(op, int64(ia), int64(ib))
	}
	return floatOp(op, toFloat(a), toFloat(b))
}

func toFloat(v ir.Value) float64 {
	if i, ok := v.(ir.Int); ok {
		return float64(i)
	}
	return float64(v.(ir.Float))
}

func intOp(op ir.Op, a, b int64) (ir.Value, error) {
	switch op.Code {
	case ir.OpAdd:
		return ir.Int(a + b), nil
	case ir.OpSub:
		return ir.Int(a - b), nil
	case ir.OpMul:
		return ir.Int(a * b), nil
	case ir.OpDiv:
		if b == 0 {
			return nil, newError(ErrCodeDivideByZero, "integer division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return ir.Int(a), nil
		}
		return ir.Int(a / b), nil
	case ir.OpEqu:
		return boolInt(a == b), nil
	case ir.OpLth:
		return boolInt(a < b), nil
	case ir.OpGth:
		return boolInt(a > b), nil
	case ir.OpLeq:
		return boolInt(a <= b), nil
	case ir.OpGeq:
		return boolInt(a >= b), nil
	}
	return nil, newError(ErrCodeInvariant, "unknown opcode %s", op.Code)
}

func floatOp(op ir.Op, a, b float64) (ir.Value, error) {
	switch op.Code {
	case ir.OpAdd:
		return ir.Float(a + b), nil
	case ir.OpSub:
		return ir.Float(a - b), nil
	case ir.OpMul:
		return ir.Float(a * b), nil
	case ir.OpDiv:
		if b == 0 {
			return nil, newError(ErrCodeDivideByZero, "float division by zero")
		}
		return ir.Float(a / b), nil
	case ir.OpEqu:
		return boolInt(a == b), nil
	case ir.OpLth:
		return boolInt(a < b), nil
	case ir.OpGth:
		return boolInt(a > b), nil
	case ir.OpLeq:
		return boolInt(a <= b), nil
	case ir.OpGeq:
		return boolInt(a >= b), nil
	}
	return nil, newError(ErrCodeInvariant, "unknown opcode %s", op.Code)
}
