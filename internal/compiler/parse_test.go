package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kdl/internal/ir"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	p, err := Parse(src, Options{})
	require.NoError(t, err)
	return p
}

func ops(c ir.Compute) []string {
	out := make([]string, len(c))
	for i, op := range c {
		out[i] = op.String()
	}
	return out
}

func TestParseSimpleRule(t *testing.T) {
	p := mustParse(t, "(x > 1 ? print [big])")

	require.Len(t, p.Rules, 1)
	assert.Equal(t, []ir.RuleID{0}, p.Root)

	r := p.Rules[0]
	assert.Equal(t, []string{`pvar "x"`, "pint 1", "gth"}, ops(r.Guard))
	assert.Equal(t, "print", r.Action.Verb)
	require.Len(t, r.Action.Params, 1)
	assert.Equal(t, []string{`pstr "big"`}, ops(r.Action.Params[0]))
	assert.Empty(t, r.Action.Child)
}

func TestParseEmptyGuard(t *testing.T) {
	p := mustParse(t, "( ? tick)")
	assert.Empty(t, p.Rules[0].Guard)
	assert.Equal(t, "tick", p.Rules[0].Action.Verb)
}

func TestParseGuardPrecedence(t *testing.T) {
	p := mustParse(t, "((a + b) * (c - d) = 4 / 2 ? v)")
	assert.Equal(t, []string{
		`pvar "a"`, `pvar "b"`, "add",
		`pvar "c"`, `pvar "d"`, "sub", "mul",
		"pint 4", "pint 2", "div", "equ",
	}, ops(p.Rules[0].Guard))
}

func TestParseDivBindsTighterThanMul(t *testing.T) {
	p := mustParse(t, "(2 * 3 / 4 ? v)")
	assert.Equal(t, []string{"pint 2", "pint 3", "pint 4", "div", "mul"}, ops(p.Rules[0].Guard))

	p = mustParse(t, "(a + b - c ? v)")
	assert.Equal(t, []string{`pvar "a"`, `pvar "b"`, `pvar "c"`, "sub", "add"}, ops(p.Rules[0].Guard))
}

func TestParseLogicOperators(t *testing.T) {
	p := mustParse(t, "(a , ! b ; c >= 2 ? v)")
	assert.Equal(t, []string{
		`pvar "a"`, `pvar "b"`, "not", "and",
		`pvar "c"`, "pint 2", "geq", "or",
	}, ops(p.Rules[0].Guard))
}

func TestParseLiterals(t *testing.T) {
	p := mustParse(t, "( ? v 50% 1.5 [s] {  a   b  } 7)")
	params := p.Rules[0].Action.Params
	require.Len(t, params, 5)

	assert.Equal(t, ir.OpPushPercent, params[0][0].Code)
	assert.Equal(t, ir.Float(0.5), params[0][0].Value)
	assert.Equal(t, ir.Float(1.5), params[1][0].Value)
	assert.Equal(t, ir.Str("s"), params[2][0].Value)

	assert.True(t, params[3][0].Global)
	assert.Equal(t, "a b", params[3][0].Name, "braced names collapse whitespace")
	assert.Equal(t, ir.Int(7), params[4][0].Value)
}

func TestParseParenthesizedParam(t *testing.T) {
	p := mustParse(t, "( ? set [n] (n + 1))")
	params := p.Rules[0].Action.Params
	require.Len(t, params, 2)
	assert.Equal(t, []string{`pvar "n"`, "pint 1", "add"}, ops(params[1]))
}

func TestParseStringNFC(t *testing.T) {
	p := mustParse(t, "( ? print [cafe\u0301])")
	assert.Equal(t, ir.Str("caf\u00e9"), p.Rules[0].Action.Params[0][0].Value)
}

func TestParseNestedRuleIDs(t *testing.T) {
	p := mustParse(t, "(? a :: (? b) (? c :: (? d))) (? e)")

	require.Len(t, p.Rules, 5)
	assert.Equal(t, []ir.RuleID{0, 4}, p.Root)
	assert.Equal(t, []ir.RuleID{1, 2}, p.Rules[0].Action.Child)
	assert.Equal(t, []ir.RuleID{3}, p.Rules[2].Action.Child)

	verbs := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		verbs[i] = r.Action.Verb
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, verbs)
}

func TestParseContextResolution(t *testing.T) {
	p := mustParse(t, `
(weather: ? ::
	(raining: prepared ? report {level} {>level}))
`)
	require.Len(t, p.Rules, 2)

	outer := p.Rules[0]
	assert.Equal(t, "weather", outer.Action.Context)
	assert.Empty(t, outer.Action.Verb, "mark-only rule has no verb")
	assert.Equal(t, []ir.RuleID{1}, outer.Action.Child)

	inner := p.Rules[1]
	assert.Equal(t, "weather raining", inner.Action.Context)
	assert.Equal(t, "weather raining prepared", inner.Guard[0].FullName())

	params := inner.Action.Params
	require.Len(t, params, 2)
	assert.Equal(t, "level", params[0][0].FullName(), "{name} is global")
	assert.Equal(t, "weather raining level", params[1][0].FullName(), "{>name} is local")
}

func TestParseMarkInGuard(t *testing.T) {
	p := mustParse(t, "(weather: (raining: prepared = 1) , ready ? go)")
	g := p.Rules[0].Guard
	assert.Equal(t, "weather raining prepared", g[0].FullName())
	assert.Equal(t, "weather ready", g[3].FullName(), "subexpression mark ends at its ')'")
	assert.Equal(t, "weather", p.Rules[0].Action.Context)
}

func TestParseMarkJumps(t *testing.T) {
	p := mustParse(t, "(a b: ? :: (^ c: x ? v) (^^: y ? v) (^: z ? v))")
	require.Len(t, p.Rules, 4)

	assert.Equal(t, "a b c x", p.Rules[1].Guard[0].FullName(), "a single caret keeps the enclosing context")
	assert.Equal(t, "a y", p.Rules[2].Guard[0].FullName())
	assert.Equal(t, "a b z", p.Rules[3].Guard[0].FullName())
}

func TestParseMarkJumpPastRoot(t *testing.T) {
	p := mustParse(t, "(a: ? :: (^^: x ? v) (^^^^: y ? v))")
	require.Len(t, p.Rules, 3)

	assert.Equal(t, "x", p.Rules[1].Guard[0].FullName())
	assert.Equal(t, "y", p.Rules[2].Guard[0].FullName(), "jumping past the root empties the context")
}

func TestParsePositions(t *testing.T) {
	p := mustParse(t, "  (x ? v)")
	assert.Equal(t, 2, p.Rules[0].Pos)
	assert.Equal(t, 3, p.Rules[0].Guard[0].Pos)
	assert.Equal(t, 7, p.Rules[0].Action.Pos)
}

func TestParseEmptySource(t *testing.T) {
	p := mustParse(t, "# nothing here\n")
	assert.Empty(t, p.Rules)
	assert.Empty(t, p.Root)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"missing open paren", "x ? v)", ErrExpectedChar},
		{"eof in execute", "(x ? print", ErrUnexpectedEOF},
		{"eof in guard", "(x > 1", ErrUnexpectedEOF},
		{"eof in child list", "(? v :: (? w)", ErrUnexpectedEOF},
		{"unmatched close", ")", ErrUnexpectedChar},
		{"unmatched close in guard", "(a ) ? v)", ErrUnexpectedChar},
		{"not equal unsupported", "(a != b ? v)", ErrUnsupportedValue},
		{"trailing operator", "(a + ? v)", ErrUnexpectedChar},
		{"missing operator", "(a b ? v)", ErrUnexpectedChar},
		{"leading operator", "(* a ? v)", ErrUnexpectedChar},
		{"empty parens", "(() ? v)", ErrUnexpectedChar},
		{"int overflow", "(99999999999999999999 ? v)", ErrUnsupportedValue},
		{"mark without colon", "(^ x ? v)", ErrExpectedChar},
		{"empty value", "(? v ())", ErrExpectedChar},
		{"empty variable", "(? v {  })", ErrExpectedChar},
		{"bad execute", "(? 5)", ErrUnexpectedChar},
		{"junk after params", "(? v 1 ?)", ErrExpectedChar},
		{"tokenizer error", "(? v [x)", ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.src, Options{})
			require.Error(t, err)
			assert.Nil(t, p, "no partial program on error")
			assert.True(t, IsParseError(err))
			assert.Equal(t, tt.code, CodeOf(err), err.Error())
		})
	}
}

func TestParseErrorLineColumn(t *testing.T) {
	_, err := Parse("\n\n  (x ? )", Options{})
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrUnexpectedChar, pe.Code)
	assert.Equal(t, 9, pe.Pos)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, 8, pe.Column)
	assert.Contains(t, pe.Error(), "3:8")
}

func TestParseLimits(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
	}{
		{"params", "(? v 1 2)", Options{MaxParams: 1}},
		{"expression", "(1 + 2 + 3 ? v)", Options{MaxExpression: 3}},
		{"context depth", "(a b: ? v)", Options{MaxContextDepth: 1}},
		{"nested context depth", "(a: ? :: (b: ? v))", Options{MaxContextDepth: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src, tt.opts)
			require.Error(t, err)
			assert.Equal(t, ErrBufferLimit, CodeOf(err))

			_, err = Parse(tt.src, Options{})
			assert.NoError(t, err, "zero options mean unlimited")
		})
	}
}

func TestCodeOfNonParseError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
	assert.False(t, IsParseError(assert.AnError))
}
