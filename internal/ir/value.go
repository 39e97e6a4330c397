package ir

import (
	"fmt"
	"strconv"
)

// Value is a sealed interface representing a kdl runtime value.
// Only Nil, Int, Float and Str implement this.
type Value interface {
	kdlValue() // Sealed - only these types implement it
}

// Nil is the absent value. Live variable entries never hold Nil.
type Nil struct{}

func (Nil) kdlValue() {}

// Int is a 64-bit signed integer value.
type Int int64

func (Int) kdlValue() {}

// Float is a floating point value. Any Float operand forces a Float result
// in arithmetic.
type Float float64

func (Float) kdlValue() {}

// Str is an owned string value.
type Str string

func (Str) kdlValue() {}

// Kind identifies which variant of Value is live.
type Kind int

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindString
)

var kindNames = [...]string{
	KindNil:    "nil",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a kind name ("int", "float", "string", "nil") to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return KindNil, fmt.Errorf("unknown value kind %q", s)
}

// KindOf returns the Kind of v. A nil interface reports KindNil.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Int:
		return KindInt
	case Float:
		return KindFloat
	case Str:
		return KindString
	default:
		return KindNil
	}
}

// Format renders v the way verbs and the CLI print it.
func Format(v Value) string {
	switch val := v.(type) {
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Str:
		return string(val)
	default:
		return "nil"
	}
}

// Numeric reports whether v is an Int or a Float.
func Numeric(v Value) bool {
	switch v.(type) {
	case Int, Float:
		return true
	}
	return false
}
