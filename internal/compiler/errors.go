package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a parse failure.
type ErrorCode string

const (
	ErrExpectedChar   ErrorCode = "EXPECTED_CHAR"
	ErrUnexpectedChar ErrorCode = "UNEXPECTED_CHAR"
	ErrUnexpectedEOF  ErrorCode = "UNEXPECTED_EOF"

	// ErrUnsupportedValue covers literal overflow and operators the
	// tokenizer accepts but the language does not define.
	ErrUnsupportedValue ErrorCode = "UNSUPPORTED_VALUE"

	// ErrBufferLimit is only produced when a configured Options limit is
	// exceeded; all internal buffers grow.
	ErrBufferLimit ErrorCode = "BUFFER_LIMIT_EXCEEDED"
)

// ParseError reports where and why tokenizing or parsing failed.
// Parsing aborts on the first error and returns no partial program.
type ParseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`

	// Pos is the byte offset into the source. Len is the length of the
	// offending span and is only meaningful when HasLen is set.
	Pos    int  `json:"pos"`
	Len    int  `json:"len,omitempty"`
	HasLen bool `json:"-"`

	// Line and Column are 1-based; Column counts bytes.
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %d:%d: %s", e.Code, e.Line, e.Column, e.Message)
}

func newParseError(src string, code ErrorCode, pos, length int, format string, args ...any) *ParseError {
	line, col := LineCol(src, pos)
	return &ParseError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
		Len:     length,
		HasLen:  length > 0,
		Line:    line,
		Column:  col,
	}
}

func tokenError(src string, code ErrorCode, tok Token, format string, args ...any) *ParseError {
	return newParseError(src, code, tok.Pos, tok.Len, format, args...)
}

// LineCol converts a byte offset into a 1-based line and column.
func LineCol(src string, pos int) (line, col int) {
	if pos > len(src) {
		pos = len(src)
	}
	before := src[:pos]
	line = strings.Count(before, "\n") + 1
	col = pos - strings.LastIndexByte(before, '\n')
	return line, col
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// CodeOf returns the code of the *ParseError wrapped by err, or "".
func CodeOf(err error) ErrorCode {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
