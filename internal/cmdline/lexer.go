// SPDX-License-Identifier: MPL-2.0

package cmdline

import (
	"strings"
	"unicode/utf8"
)

const (
	// KindQuoted is a complete quoted string.
	KindQuoted Kind = iota + 1
	// KindEscape is an escape character and the character it escapes.
	KindEscape
	// KindOperator is a control or redirection operator.
	KindOperator
	// KindWord is a run of ordinary characters.
	KindWord
	// KindSpace is a run of whitespace.
	KindSpace
	// KindInvalid is a single character that matches no other kind.
	KindInvalid
)

type (
	// Kind tags a lexical unit.
	Kind int

	// Unit is one lexical unit of a command line.
	Unit struct {
		Kind Kind
		// Text is the matched substring of the input.
		Text string
		// Value is the resolved text: quotes removed, escapes applied.
		Value string
		// Pos is the byte offset of Text in the input.
		Pos int
	}

	lexer struct {
		rules *Rules
		input string
		pos   int
		units []Unit
	}
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindQuoted:
		return "quoted"
	case KindEscape:
		return "escape"
	case KindOperator:
		return "operator"
	case KindWord:
		return "word"
	case KindSpace:
		return "space"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// End returns the byte offset just past the unit.
func (u Unit) End() int { return u.Pos + len(u.Text) }

// Lex breaks line into lexical units under the dialect's rules. The units
// cover the whole input without gaps; characters that fit no category come
// back as KindInvalid units.
func Lex(line string, d Dialect) []Unit {
	l := &lexer{rules: d.Rules(), input: line}
	for l.pos < len(l.input) {
		l.next()
	}
	return l.units
}

func (l *lexer) emit(kind Kind, end int, value string) {
	l.units = append(l.units, Unit{Kind: kind, Text: l.input[l.pos:end], Value: value, Pos: l.pos})
	l.pos = end
}

func (l *lexer) invalid() {
	_, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.emit(KindInvalid, l.pos+size, "")
}

func (l *lexer) next() {
	s, i, r := l.input, l.pos, l.rules
	c := s[i]
	switch {
	case isSpace(c):
		end := i
		for end < len(s) && isSpace(s[end]) {
			end++
		}
		l.emit(KindSpace, end, s[i:end])
	case r.isQuote(c):
		l.quoted()
	case r.escapeAt(s, i):
		if i+1 >= len(s) {
			l.invalid()
			return
		}
		_, size := utf8.DecodeRuneInString(s[i+1:])
		l.emit(KindEscape, i+1+size, s[i+1:i+1+size])
	default:
		if op := r.operatorAt(s, i); op != "" {
			l.emit(KindOperator, i+len(op), op)
			return
		}
		l.word()
	}
}

// quoted lexes a quoted unit starting at the current position. Inside double
// quotes a backslash escapes a following quote or backslash, and `""` is a
// literal quote when the dialect allows it; every other character is literal.
func (l *lexer) quoted() {
	s, r := l.input, l.rules
	q := s[l.pos]
	var b strings.Builder
	for j := l.pos + 1; j < len(s); j++ {
		ch := s[j]
		if q == '"' {
			if ch == '\\' && j+1 < len(s) && (s[j+1] == '"' || s[j+1] == '\\') {
				b.WriteByte(s[j+1])
				j++
				continue
			}
			if ch == '"' && r.DoubledQuote && j+1 < len(s) && s[j+1] == '"' {
				b.WriteByte('"')
				j++
				continue
			}
		}
		if ch == q {
			l.emit(KindQuoted, j+1, b.String())
			return
		}
		b.WriteByte(ch)
	}
	l.invalid()
}

// word lexes a run of ordinary characters. Substitution groups are kept
// inside the word so that their parentheses never act as operators.
func (l *lexer) word() {
	s, r := l.input, l.rules
	end := l.pos
	for end < len(s) {
		c := s[end]
		if r.Substitutions {
			if n := substitutionEnd(s, end); n > end {
				end = n
				continue
			} else if n < 0 {
				break
			}
		}
		if r.isSpecial(c) && (c != r.Escape || r.escapeAt(s, end)) {
			break
		}
		end++
	}
	if end == l.pos {
		l.invalid()
		return
	}
	l.emit(KindWord, end, s[l.pos:end])
}

// substitutionEnd returns the end offset of a `$(...)`, `${...}` or backtick
// group starting at s[i:]. It returns i when no group starts there and -1
// when a group is left unterminated.
func substitutionEnd(s string, i int) int {
	switch {
	case s[i] == '`':
		if j := strings.IndexByte(s[i+1:], '`'); j >= 0 {
			return i + j + 2
		}
		return -1
	case strings.HasPrefix(s[i:], "$("), strings.HasPrefix(s[i:], "${"):
		open, closing := s[i+1], byte(')')
		if open == '{' {
			closing = '}'
		}
		depth := 0
		var quote byte
		for j := i + 1; j < len(s); j++ {
			c := s[j]
			switch {
			case quote != 0:
				if c == '\\' && quote == '"' {
					j++
				} else if c == quote {
					quote = 0
				}
			case c == '\\':
				j++
			case c == '"' || c == '\'':
				quote = c
			case c == open:
				depth++
			case c == closing:
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
		return -1
	}
	return i
}
