package expr

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string  // raw text for idents/puncts
	num  float64 // value for numbers
	str  string  // decoded value for strings
	pos  int     // byte offset in source
}

// lexer produces tokens from an expression source string.
type lexer struct {
	src string
	pos int
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// punctuators ordered longest-first so the scanner is greedy.
var punctuators = []string{
	"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "??",
	"+", "-", "*", "/", "%", "<", ">", "!", "?", ":", ",", ".", "(", ")", "[", "]",
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.pos++
		default:
			return
		}
	}
}

// next scans and returns the next token.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	if isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])) {
		return l.scanNumber(start)
	}
	if c == '\'' || c == '"' {
		return l.scanString(start)
	}
	if isIdentStart(c) {
		end := l.pos + 1
		for end < len(l.src) && isIdentPart(l.src[end]) {
			end++
		}
		l.pos = end
		return token{kind: tokIdent, text: l.src[start:end], pos: start}, nil
	}

	for _, p := range punctuators {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			return token{kind: tokPunct, text: p, pos: start}, nil
		}
	}

	return token{}, newError("unexpected character "+strconv.Quote(string(c)), l.src, start)
}

func (l *lexer) scanNumber(start int) (token, error) {
	end := l.pos
	for end < len(l.src) && isDigit(l.src[end]) {
		end++
	}
	if end < len(l.src) && l.src[end] == '.' {
		end++
		for end < len(l.src) && isDigit(l.src[end]) {
			end++
		}
	}
	if end < len(l.src) && (l.src[end] == 'e' || l.src[end] == 'E') {
		mark := end
		end++
		if end < len(l.src) && (l.src[end] == '+' || l.src[end] == '-') {
			end++
		}
		if end < len(l.src) && isDigit(l.src[end]) {
			for end < len(l.src) && isDigit(l.src[end]) {
				end++
			}
		} else {
			end = mark // not an exponent after all
		}
	}
	n, err := strconv.ParseFloat(l.src[start:end], 64)
	if err != nil {
		return token{}, newError("invalid number literal", l.src, start)
	}
	l.pos = end
	return token{kind: tokNumber, num: n, pos: start}, nil
}

func (l *lexer) scanString(start int) (token, error) {
	quote := l.src[l.pos]
	var sb strings.Builder
	i := l.pos + 1
	for i < len(l.src) {
		c := l.src[i]
		if c == '\\' {
			if i+1 >= len(l.src) {
				break
			}
			i++
			switch l.src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				// \', \", \\ and any unknown escape keep the escaped char
				sb.WriteByte(l.src[i])
			}
			i++
			continue
		}
		if c == quote {
			l.pos = i + 1
			return token{kind: tokString, str: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		i++
	}
	return token{}, newError("unterminated string literal", l.src, start)
}
