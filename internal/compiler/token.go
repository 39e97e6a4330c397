package compiler

import "fmt"

// TokenKind classifies a token by its first character.
type TokenKind int

const (
	TokenCtrl TokenKind = iota
	TokenWord
	TokenInt
	TokenFloat
	TokenPercent
	TokenVar    // {...}
	TokenString // [...]
)

var tokenKindNames = [...]string{
	TokenCtrl:    "ctrl",
	TokenWord:    "word",
	TokenInt:     "int",
	TokenFloat:   "float",
	TokenPercent: "percent",
	TokenVar:     "var",
	TokenString:  "string",
}

func (k TokenKind) String() string {
	if k < 0 || int(k) >= len(tokenKindNames) {
		return fmt.Sprintf("TokenKind(%d)", int(k))
	}
	return tokenKindNames[k]
}

// Token is a slice of the source text. Text excludes delimiters: the
// brackets of strings and variables, and the '%' of percentages.
type Token struct {
	Kind TokenKind
	Text string

	// Pos and Len span the whole token in the source, delimiters included.
	Pos int
	Len int
}

// Is reports whether t is the control token text.
func (t Token) Is(text string) bool {
	return t.Kind == TokenCtrl && t.Text == text
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}
