package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/kdl/internal/ir"
)

// RuntimeError represents an error detected while the machine runs or
// while the host reads and writes machine state.
//
// Errors raised inside Run are fatal: the machine records the error and
// every later Run returns ErrCodeFaulted wrapping it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Cycle is the cycle number the error occurred in, or 0 outside Run.
	Cycle int64

	// Rule is the arena index of the rule being evaluated, or -1.
	Rule ir.RuleID

	// Line and Column locate Rule in the loaded source (1-based, 0 if unknown).
	Line   int
	Column int

	// Verb and Name identify the verb or variable involved, when any.
	Verb string
	Name string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUndefinedReference indicates a verb lookup miss with no default verb.
	ErrCodeUndefinedReference RuntimeErrorCode = "UNDEFINED_REFERENCE"

	// ErrCodeTypeMismatch indicates a guard, operand or parameter of the wrong kind.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeBufferLimit indicates a configured limit was exceeded.
	ErrCodeBufferLimit RuntimeErrorCode = "BUFFER_LIMIT_EXCEEDED"

	// ErrCodeDivideByZero indicates division by a zero Int or Float.
	ErrCodeDivideByZero RuntimeErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeNotLoaded indicates Run was called before Load.
	ErrCodeNotLoaded RuntimeErrorCode = "NOT_LOADED"

	// ErrCodeVerbFailed indicates a verb callback returned an error.
	ErrCodeVerbFailed RuntimeErrorCode = "VERB_FAILED"

	// ErrCodeTraceFailed indicates the tracer rejected a firing record.
	ErrCodeTraceFailed RuntimeErrorCode = "TRACE_FAILED"

	// ErrCodeInvariant indicates corrupt compiled code or misuse such as
	// re-entrant Run.
	ErrCodeInvariant RuntimeErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeOutOfMemory indicates the allocator refused a request.
	ErrCodeOutOfMemory RuntimeErrorCode = "OUT_OF_MEMORY"

	// ErrCodeFaulted indicates Run was called after a fatal error.
	ErrCodeFaulted RuntimeErrorCode = "FAULTED"

	// ErrCodeClosed indicates use after Close.
	ErrCodeClosed RuntimeErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var where []string
	if e.Cycle > 0 {
		where = append(where, fmt.Sprintf("cycle=%d", e.Cycle))
	}
	if e.Rule >= 0 {
		where = append(where, fmt.Sprintf("rule=%d", e.Rule))
	}
	if e.Line > 0 {
		where = append(where, fmt.Sprintf("at %d:%d", e.Line, e.Column))
	}
	if len(where) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(where, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func newError(code RuntimeErrorCode, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Rule:    -1,
	}
}

// hasCode reports whether any RuntimeError in err's chain carries code.
func hasCode(err error, code RuntimeErrorCode) bool {
	for err != nil {
		var re *RuntimeError
		if !errors.As(err, &re) {
			return false
		}
		if re.Code == code {
			return true
		}
		err = re.Err
	}
	return false
}

// CodeOf returns the code of the outermost RuntimeError in err's chain, or "".
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTypeMismatch returns true if err is or wraps a type mismatch.
// Uses errors.As to handle wrapped errors.
func IsTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsUndefinedReference returns true if err is or wraps a verb lookup miss.
func IsUndefinedReference(err error) bool {
	return hasCode(err, ErrCodeUndefinedReference)
}

// IsLimitError returns true if err is or wraps a configured limit being
// exceeded. Matches both RuntimeError with ErrCodeBufferLimit and
// ActiveLimitError.
func IsLimitError(err error) bool {
	if hasCode(err, ErrCodeBufferLimit) {
		return true
	}
	var le *ActiveLimitError
	return errors.As(err, &le)
}

// IsOutOfMemory returns true if err is or wraps an allocator refusal.
func IsOutOfMemory(err error) bool {
	return hasCode(err, ErrCodeOutOfMemory)
}

// IsFaulted returns true if err reports a machine poisoned by an earlier error.
func IsFaulted(err error) bool {
	return hasCode(err, ErrCodeFaulted)
}

// NewTypeMismatch creates a RuntimeError for a value of the wrong kind.
func NewTypeMismatch(what string, want, got ir.Kind) *RuntimeError {
	e := newError(ErrCodeTypeMismatch, "%s must be %s, got %s", what, want, got)
	e.Details = map[string]string{"want": want.String(), "got": got.String()}
	return e
}

// NewUndefinedVerb creates a RuntimeError for a verb with no registration
// and no default verb.
func NewUndefinedVerb(verb string) *RuntimeError {
	e := newError(ErrCodeUndefinedReference, "verb %q is not defined and no default verb is set", verb)
	e.Verb = verb
	return e
}
