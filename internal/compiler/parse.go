package compiler

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/kdl/internal/ir"
)

// Options bounds parser buffers. Zero means unlimited; a positive value is
// a hard cap that fails the parse with BUFFER_LIMIT_EXCEEDED.
type Options struct {
	// MaxExpression caps the elements (operands, operators, parens) of one
	// expression.
	MaxExpression int

	// MaxContextDepth caps the number of words in a resolved context.
	MaxContextDepth int

	// MaxParams caps the parameters of one verb call.
	MaxParams int
}

// Parse compiles source text into a Program.
//
// Grammar:
//
//	Program := Rule* (')' | EOF)
//	Rule    := '(' Mark? Compute '?' Execute
//	Execute := Word Value* ('::' Program | ')')
//	         | '::' Program
//	Mark    := '^'* Word* ':'
//	Value   := literal | Word | '(' Mark? Compute ')'
//
// Marks nest: a mark extends the enclosing context. N leading carets first
// drop N-1 words from it, so a lone '^' keeps the enclosing context and
// '^^' drops its last word. The mark holds for the rest of the rule,
// including nested rule lists, or for the rest of the parenthesized
// subexpression it opens.
func Parse(src string, opts Options) (*ir.Program, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		src:  src,
		toks: tokens,
		opts: opts,
		prog: &ir.Program{},
	}
	root, err := p.parseProgram(scope{}, false)
	if err != nil {
		return nil, err
	}
	p.prog.Root = root
	return p.prog, nil
}

type parser struct {
	src  string
	toks []Token
	i    int
	opts Options
	prog *ir.Program
}

func (p *parser) more() bool {
	return p.i < len(p.toks)
}

func (p *parser) peek() Token {
	if p.i < len(p.toks) {
		return p.toks[p.i]
	}
	return Token{Kind: TokenCtrl, Pos: len(p.src)}
}

func (p *parser) eofError(msg string) *ParseError {
	return newParseError(p.src, ErrUnexpectedEOF, len(p.src), 0, "%s", msg)
}

// parseProgram reads rules until EOF (top level) or the ')' closing a
// nested rule list, which it consumes.
func (p *parser) parseProgram(sc scope, nested bool) ([]ir.RuleID, error) {
	var ids []ir.RuleID
	for {
		if !p.more() {
			if nested {
				return nil, p.eofError("reached EOF while reading nested rule list")
			}
			return ids, nil
		}
		tok := p.peek()
		if tok.Is(")") {
			if !nested {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "unmatched ')'")
			}
			p.i++
			return ids, nil
		}
		id, err := p.parseRule(sc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
}

func (p *parser) parseRule(parent scope) (ir.RuleID, error) {
	open := p.peek()
	if !open.Is("(") {
		return 0, tokenError(p.src, ErrExpectedChar, open, "expected '(' at start of rule")
	}
	p.i++

	sc := parent
	m, ok, err := p.parseMark()
	if err != nil {
		return 0, err
	}
	if ok {
		if sc, err = p.enter(parent, m); err != nil {
			return 0, err
		}
	}

	// Reserve the slot first so a parent always precedes its children.
	id := ir.RuleID(len(p.prog.Rules))
	p.prog.Rules = append(p.prog.Rules, ir.Rule{Pos: open.Pos})

	guard, err := p.parseCompute(sc, "?")
	if err != nil {
		return 0, err
	}
	action, err := p.parseExecute(sc)
	if err != nil {
		return 0, err
	}

	r := &p.prog.Rules[id]
	r.Guard = guard
	r.Action = action
	return id, nil
}

func (p *parser) parseExecute(sc scope) (ir.Action, error) {
	if !p.more() {
		return ir.Action{}, p.eofError("reached EOF while reading execute")
	}
	tok := p.peek()
	action := ir.Action{Context: sc.String(), Pos: tok.Pos}

	switch {
	case tok.Kind == TokenWord:
		action.Verb = tok.Text
		p.i++
		for p.more() && (p.peek().Kind != TokenCtrl || p.peek().Is("(")) {
			if p.opts.MaxParams > 0 && len(action.Params) >= p.opts.MaxParams {
				return ir.Action{}, tokenError(p.src, ErrBufferLimit, p.peek(),
					"verb %q takes more than %d parameters", action.Verb, p.opts.MaxParams)
			}
			param, err := p.parseValue(sc)
			if err != nil {
				return ir.Action{}, err
			}
			action.Params = append(action.Params, param)
		}
	case tok.Is("::"):
		// Mark-only rule: no verb, just a nested rule list.
	default:
		return ir.Action{}, tokenError(p.src, ErrUnexpectedChar, tok,
			"unexpected %s while reading execute", tok)
	}

	if !p.more() {
		return ir.Action{}, p.eofError("expected ')' at end of execute")
	}
	end := p.peek()
	switch {
	case end.Is("::"):
		p.i++
		child, err := p.parseProgram(sc, true)
		if err != nil {
			return ir.Action{}, err
		}
		action.Child = child
	case end.Is(")"):
		p.i++
	default:
		return ir.Action{}, tokenError(p.src, ErrExpectedChar, end, "expected ')' at end of execute")
	}
	return action, nil
}

// parseValue reads one verb parameter: a single literal or word, or a
// parenthesized expression optionally opening with a mark.
func (p *parser) parseValue(sc scope) (ir.Compute, error) {
	tok := p.peek()
	if tok.Kind != TokenCtrl {
		op, err := p.rawValue(tok, sc)
		if err != nil {
			return nil, err
		}
		p.i++
		return ir.Compute{op}, nil
	}

	// Only '(' reaches here.
	p.i++
	m, ok, err := p.parseMark()
	if err != nil {
		return nil, err
	}
	if ok {
		if sc, err = p.enter(sc, m); err != nil {
			return nil, err
		}
	}
	c, err := p.parseCompute(sc, ")")
	if err != nil {
		return nil, err
	}
	if len(c) == 0 {
		return nil, tokenError(p.src, ErrExpectedChar, tok, "empty value expression")
	}
	return c, nil
}

// parseCompute reads an infix expression up to the terminator token at
// paren depth zero, consumes the terminator, and returns the postfix ops.
// Parenthesized subexpressions may open with a mark that scopes their
// contents.
func (p *parser) parseCompute(parent scope, terminator string) (ir.Compute, error) {
	type frame struct {
		sc    scope
		depth int
	}
	scopes := []frame{{sc: parent}}
	current := func() scope { return scopes[len(scopes)-1].sc }

	var elems []element[ir.Op]
	depth := 0
	expectOperand := true

	push := func(e element[ir.Op], tok Token) error {
		if p.opts.MaxExpression > 0 && len(elems) >= p.opts.MaxExpression {
			return tokenError(p.src, ErrBufferLimit, tok,
				"expression exceeds %d elements", p.opts.MaxExpression)
		}
		elems = append(elems, e)
		return nil
	}

	for {
		if !p.more() {
			return nil, p.eofError("expected '" + terminator + "' before EOF")
		}
		tok := p.peek()

		if depth == 0 && tok.Is(terminator) {
			if !expectOperand || len(elems) == 0 {
				p.i++
				break
			}
			return nil, tokenError(p.src, ErrUnexpectedChar, tok, "expression ends with an operator")
		}

		if tok.Kind != TokenCtrl {
			if !expectOperand {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "expected operator before %s", tok)
			}
			op, err := p.rawValue(tok, current())
			if err != nil {
				return nil, err
			}
			if err := push(element[ir.Op]{data: op}, tok); err != nil {
				return nil, err
			}
			p.i++
			expectOperand = false
			continue
		}

		switch tok.Text {
		case "(":
			if !expectOperand {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "expected operator before '('")
			}
			if err := push(element[ir.Op]{precChange: 1}, tok); err != nil {
				return nil, err
			}
			p.i++
			depth++
			m, ok, err := p.parseMark()
			if err != nil {
				return nil, err
			}
			if ok {
				sc, err := p.enter(current(), m)
				if err != nil {
					return nil, err
				}
				scopes = append(scopes, frame{sc: sc, depth: depth})
			}
		case ")":
			if depth == 0 {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "unmatched ')'")
			}
			if expectOperand {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "expected operand before ')'")
			}
			if err := push(element[ir.Op]{precChange: -1}, tok); err != nil {
				return nil, err
			}
			p.i++
			if scopes[len(scopes)-1].depth == depth {
				scopes = scopes[:len(scopes)-1]
			}
			depth--
		case "!":
			if !expectOperand {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "'!' must precede an operand")
			}
			op := ir.Op{Code: ir.OpNot, Pos: tok.Pos}
			if err := push(element[ir.Op]{data: op, prec: precNot, prefix: true}, tok); err != nil {
				return nil, err
			}
			p.i++
		case "!=":
			return nil, tokenError(p.src, ErrUnsupportedValue, tok, "operator '!=' is not supported")
		default:
			bin, ok := binaryOps[tok.Text]
			if !ok {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "unexpected %q in expression", tok.Text)
			}
			if expectOperand {
				return nil, tokenError(p.src, ErrUnexpectedChar, tok, "expected operand before %q", tok.Text)
			}
			op := ir.Op{Code: bin.code, Pos: tok.Pos}
			if err := push(element[ir.Op]{data: op, prec: bin.prec}, tok); err != nil {
				return nil, err
			}
			p.i++
			expectOperand = true
		}
	}

	return ir.Compute(infixToPostfix(elems, maxPrec)), nil
}

// rawValue converts a literal, word or braced variable token into a push op.
// Words and {>name} resolve inside sc; {name} is global.
func (p *parser) rawValue(tok Token, sc scope) (ir.Op, error) {
	op := ir.Op{Pos: tok.Pos}
	switch tok.Kind {
	case TokenInt:
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return op, tokenError(p.src, ErrUnsupportedValue, tok, "integer literal %s out of range", tok.Text)
		}
		op.Code, op.Value = ir.OpPushInt, ir.Int(n)
	case TokenFloat, TokenPercent:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil || math.IsInf(f, 0) {
			return op, tokenError(p.src, ErrUnsupportedValue, tok, "number literal %s out of range", tok.Text)
		}
		op.Code, op.Value = ir.OpPushFloat, ir.Float(f)
		if tok.Kind == TokenPercent {
			op.Code, op.Value = ir.OpPushPercent, ir.Float(f/100)
		}
	case TokenString:
		op.Code, op.Value = ir.OpPushString, ir.Str(norm.NFC.String(tok.Text))
	case TokenWord:
		op.Code, op.Name, op.Context = ir.OpPushVar, tok.Text, sc.String()
	case TokenVar:
		name := tok.Text
		local := strings.HasPrefix(strings.TrimLeft(name, " \t\n\v\f\r"), ">")
		if local {
			name = strings.Replace(name, ">", "", 1)
		}
		name = norm.NFC.String(collapseSpace(name))
		if name == "" {
			return op, tokenError(p.src, ErrExpectedChar, tok, "empty variable name")
		}
		op.Code, op.Name = ir.OpPushVar, name
		if local {
			op.Context = sc.String()
		} else {
			op.Global = true
		}
	default:
		return op, tokenError(p.src, ErrUnexpectedChar, tok, "unexpected %s where a value was expected", tok)
	}
	return op, nil
}

// collapseSpace trims a braced name and folds whitespace runs to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r < 0x80 && isSpace(byte(r))
	}), " ")
}
