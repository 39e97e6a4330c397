package compiler

import "strings"

// scope is one context tracker: the words of the enclosing marks.
// Boundaries are per word, so jumps remove single words.
type scope struct {
	words []string
}

// String returns the space-joined context used as a lookup prefix.
func (s scope) String() string {
	return strings.Join(s.words, " ")
}

// derive builds the scope a mark opens: N jumps drop the last N-1 words of
// s, then the mark's own words are appended. A single '^' therefore keeps s
// whole. Jumping past the root yields an empty scope.
func (s scope) derive(jumps int, words []string) scope {
	keep := len(s.words)
	if jumps > 0 {
		keep = max(len(s.words)-(jumps-1), 0)
	}
	next := make([]string, 0, keep+len(words))
	next = append(next, s.words[:keep]...)
	next = append(next, words...)
	return scope{words: next}
}

// mark is a parsed `^* word* :` prefix.
type mark struct {
	jumps int
	words []string
	pos   int
}

// parseMark tries to read a mark at the cursor. When the tokens there do
// not form a mark the cursor is left untouched and ok is false.
func (p *parser) parseMark() (m mark, ok bool, err error) {
	start := p.i
	m.pos = p.peek().Pos
	for p.more() && p.peek().Is("^") {
		m.jumps++
		p.i++
	}
	for p.more() && p.peek().Kind == TokenWord {
		m.words = append(m.words, p.peek().Text)
		p.i++
	}
	if p.more() && p.peek().Is(":") {
		p.i++
		return m, true, nil
	}
	if m.jumps > 0 {
		if !p.more() {
			return mark{}, false, p.eofError("reached EOF while reading mark")
		}
		return mark{}, false, tokenError(p.src, ErrExpectedChar, p.peek(), "expected ':' at end of mark")
	}
	p.i = start
	return mark{}, false, nil
}

// enter applies a parsed mark to the enclosing scope, enforcing the
// configured context depth.
func (p *parser) enter(parent scope, m mark) (scope, error) {
	next := parent.derive(m.jumps, m.words)
	if p.opts.MaxContextDepth > 0 && len(next.words) > p.opts.MaxContextDepth {
		return scope{}, newParseError(p.src, ErrBufferLimit, m.pos, 0,
			"context depth %d exceeds limit %d", len(next.words), p.opts.MaxContextDepth)
	}
	return next, nil
}
