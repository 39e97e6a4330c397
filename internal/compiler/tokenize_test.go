package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tk struct {
	kind TokenKind
	text string
}

func kinds(tokens []Token) []tk {
	out := make([]tk, len(tokens))
	for i, t := range tokens {
		out[i] = tk{t.Kind, t.Text}
	}
	return out
}

func TestTokenizeSkipsComment(t *testing.T) {
	tokens, err := Tokenize("42 + foo # comment\n")
	require.NoError(t, err)
	assert.Equal(t, []tk{
		{TokenInt, "42"},
		{TokenCtrl, "+"},
		{TokenWord, "foo"},
	}, kinds(tokens))
}

func TestTokenizeCommentLineEndings(t *testing.T) {
	for name, src := range map[string]string{
		"lf":   "a # one\nb",
		"cr":   "a # one\rb",
		"crlf": "a # one\r\nb",
	} {
		t.Run(name, func(t *testing.T) {
			tokens, err := Tokenize(src)
			require.NoError(t, err)
			assert.Equal(t, []tk{{TokenWord, "a"}, {TokenWord, "b"}}, kinds(tokens))
		})
	}
}

func TestTokenizeControlTokens(t *testing.T) {
	tokens, err := Tokenize("> >= < <= ! != : :: / * - + = ; , ( ) ? ^")
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		assert.Equal(t, TokenCtrl, tok.Kind, tok.Text)
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{
		">", ">=", "<", "<=", "!", "!=", ":", "::",
		"/", "*", "-", "+", "=", ";", ",", "(", ")", "?", "^",
	}, texts)
}

func TestTokenizeNumbers(t *testing.T) {
	tokens, err := Tokenize("7 3.25 50% 12.5% 4")
	require.NoError(t, err)
	assert.Equal(t, []tk{
		{TokenInt, "7"},
		{TokenFloat, "3.25"},
		{TokenPercent, "50"},
		{TokenPercent, "12.5"},
		{TokenInt, "4"},
	}, kinds(tokens))
}

func TestTokenizeTrailingDotIsNotFloat(t *testing.T) {
	_, err := Tokenize("4.")
	require.Error(t, err)
	assert.Equal(t, ErrUnexpectedChar, CodeOf(err), "'.' is not a token on its own")
}

func TestTokenizeDelimited(t *testing.T) {
	tokens, err := Tokenize("[hello world] { >weather level }")
	require.NoError(t, err)
	assert.Equal(t, []tk{
		{TokenString, "hello world"},
		{TokenVar, " >weather level "},
	}, kinds(tokens))
	assert.Equal(t, 0, tokens[0].Pos)
	assert.Equal(t, 13, tokens[0].Len, "span includes brackets")
}

func TestTokenizeWords(t *testing.T) {
	tokens, err := Tokenize("_private snake_case x2")
	require.NoError(t, err)
	assert.Equal(t, []tk{
		{TokenWord, "_private"},
		{TokenWord, "snake_case"},
		{TokenWord, "x2"},
	}, kinds(tokens))
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
		pos  int
	}{
		{"unterminated string", "print [oops", ErrUnexpectedEOF, 11},
		{"unterminated variable", "x {oops", ErrUnexpectedEOF, 7},
		{"unknown character", "a $ b", ErrUnexpectedChar, 2},
		{"non ascii word", "é", ErrUnexpectedChar, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src)
			require.Error(t, err)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.pos, pe.Pos)
		})
	}
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := Tokenize("   # only a comment")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
