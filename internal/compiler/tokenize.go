package compiler

// Tokenize scans src into a flat token list, skipping whitespace and
// '#' comments. Comments end at "\n", "\r" or "\r\n".
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	i := 0
	for {
		i = skipSpace(src, i)
		if i >= len(src) {
			return tokens, nil
		}
		tok, err := scanToken(src, i)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		i = tok.Pos + tok.Len
	}
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		c := src[i]
		switch {
		case isSpace(c):
			i++
		case c == '#':
			for i < len(src) && src[i] != '\n' && src[i] != '\r' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func scanToken(src string, start int) (Token, error) {
	c := src[start]
	next := byte(0)
	if start+1 < len(src) {
		next = src[start+1]
	}

	ctrl := func(n int) (Token, error) {
		return Token{Kind: TokenCtrl, Text: src[start : start+n], Pos: start, Len: n}, nil
	}

	switch c {
	case '>', '<', '!':
		if next == '=' {
			return ctrl(2)
		}
		return ctrl(1)
	case ':':
		if next == ':' {
			return ctrl(2)
		}
		return ctrl(1)
	case '/', '*', '-', '+', '=', ';', ',', '(', ')', '?', '^':
		return ctrl(1)
	case '[':
		return scanDelimited(src, start, ']', TokenString, "string literal")
	case '{':
		return scanDelimited(src, start, '}', TokenVar, "variable")
	}

	switch {
	case isDigit(c):
		return scanNumber(src, start), nil
	case isWordStart(c):
		end := start + 1
		for end < len(src) && isWordChar(src[end]) {
			end++
		}
		return Token{Kind: TokenWord, Text: src[start:end], Pos: start, Len: end - start}, nil
	}

	return Token{}, newParseError(src, ErrUnexpectedChar, start, 1,
		"unrecognized character %q", rune(c))
}

func scanDelimited(src string, start int, closer byte, kind TokenKind, what string) (Token, error) {
	end := start + 1
	for end < len(src) && src[end] != closer {
		end++
	}
	if end >= len(src) {
		return Token{}, newParseError(src, ErrUnexpectedEOF, len(src), 0,
			"reached EOF while reading %s", what)
	}
	return Token{Kind: kind, Text: src[start+1 : end], Pos: start, Len: end + 1 - start}, nil
}

// scanNumber reads an integer, upgraded to a float by '.' plus digits and
// to a percentage by a trailing '%'. Leading '.' is not a number.
func scanNumber(src string, start int) Token {
	end := start
	for end < len(src) && isDigit(src[end]) {
		end++
	}
	kind := TokenInt
	if end+1 < len(src) && src[end] == '.' && isDigit(src[end+1]) {
		kind = TokenFloat
		end++
		for end < len(src) && isDigit(src[end]) {
			end++
		}
	}
	text := src[start:end]
	if end < len(src) && src[end] == '%' {
		return Token{Kind: TokenPercent, Text: text, Pos: start, Len: end + 1 - start}
	}
	return Token{Kind: kind, Text: text, Pos: start, Len: end - start}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isWordChar(c byte) bool {
	return isWordStart(c) || isDigit(c)
}
