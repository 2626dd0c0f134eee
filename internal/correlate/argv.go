// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrArgv is returned when a traced argument vector cannot be parsed.
	ErrArgv = errors.New("malformed argument vector")
	// ErrArgvOmitted is returned when strace printed the vector as an
	// address or NULL instead of its strings (e.g. under -e verbose=none).
	// It wraps ErrArgv.
	ErrArgvOmitted = fmt.Errorf("%w: vector not printed", ErrArgv)
)

// ArgvError reports where an argument vector failed to parse.
type ArgvError struct {
	Text string
	Pos  int
	Msg  string
	// Err is ErrArgv or ErrArgvOmitted; nil means ErrArgv.
	Err error
}

// Error implements the error interface.
func (e *ArgvError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d in %q", e.Unwrap(), e.Msg, e.Pos, e.Text)
}

// Unwrap returns the sentinel for errors.Is() compatibility.
func (e *ArgvError) Unwrap() error {
	if e.Err == nil {
		return ErrArgv
	}
	return e.Err
}

// argvParser reads the argument text of an execve-family call.
type argvParser struct {
	s   string
	pos int
}

// ParseExecArgs extracts the program path and argument vector from the raw
// argument text of execve (`"/bin/cc", ["cc", "-c"], 0x7ff /* 3 vars */`)
// or execveat (`AT_FDCWD, "/bin/cc", [...], ...`). The vector is a bracketed
// list of C-escaped strings; a `...` element or suffix marks truncation and
// is dropped.
func ParseExecArgs(text string) (prog string, argv []string, err error) {
	p := &argvParser{s: text}
	p.skipSpace()
	if p.peek() != '"' {
		// execveat: skip the directory descriptor.
		i := strings.IndexByte(p.s[p.pos:], ',')
		if i < 0 {
			return "", nil, p.fail("missing program path")
		}
		p.pos += i + 1
		p.skipSpace()
	}
	if prog, err = p.str(); err != nil {
		return "", nil, err
	}
	p.skipSpace()
	if !p.accept(',') {
		return "", nil, p.fail("expected ',' after program path")
	}
	p.skipSpace()
	if argv, err = p.array(); err != nil {
		return "", nil, err
	}
	return prog, argv, nil
}

func (p *argvParser) fail(msg string) error {
	return &ArgvError{Text: p.s, Pos: p.pos, Msg: msg}
}

func (p *argvParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *argvParser) accept(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *argvParser) acceptText(t string) bool {
	if strings.HasPrefix(p.s[p.pos:], t) {
		p.pos += len(t)
		return true
	}
	return false
}

func (p *argvParser) skipSpace() {
	for {
		for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
			p.pos++
		}
		if !p.acceptText("/*") {
			return
		}
		end := strings.Index(p.s[p.pos:], "*/")
		if end < 0 {
			p.pos = len(p.s)
			return
		}
		p.pos += end + 2
	}
}

// omitted reports whether the vector is an address or NULL.
func (p *argvParser) omitted() bool {
	rest := p.s[p.pos:]
	return strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "NULL")
}

// array parses `[elem, elem, ...]`. An element is a string, optionally
// followed by `...`, or a bare `...`.
func (p *argvParser) array() ([]string, error) {
	if p.omitted() {
		return nil, &ArgvError{Text: p.s, Pos: p.pos, Msg: "expected '['", Err: ErrArgvOmitted}
	}
	if !p.accept('[') {
		return nil, p.fail("expected '['")
	}
	argv := []string{}
	p.skipSpace()
	if p.accept(']') {
		return argv, nil
	}
	for {
		p.skipSpace()
		if !p.acceptText("...") {
			s, err := p.str()
			if err != nil {
				return nil, err
			}
			argv = append(argv, s)
			p.acceptText("...")
		}
		p.skipSpace()
		if p.accept(']') {
			return argv, nil
		}
		if !p.accept(',') {
			return nil, p.fail("expected ',' or ']'")
		}
	}
}

// str parses one C-escaped double-quoted string.
func (p *argvParser) str() (string, error) {
	if !p.accept('"') {
		return "", p.fail(`expected '"'`)
	}
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", p.fail("unterminated string")
}

func (p *argvParser) escape(b *strings.Builder) error {
	if p.pos >= len(p.s) {
		return p.fail("dangling escape")
	}
	c := p.s[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'v':
		b.WriteByte('\v')
	case 'f':
		b.WriteByte('\f')
	case 'a':
		b.WriteByte('\a')
	case 'b':
		b.WriteByte('\b')
	case 'e':
		b.WriteByte(0x1b)
	case 'x':
		n := 0
		for n < 2 && p.pos+n < len(p.s) && isHex(p.s[p.pos+n]) {
			n++
		}
		if n == 0 {
			return p.fail(`\x without hex digits`)
		}
		v, _ := strconv.ParseUint(p.s[p.pos:p.pos+n], 16, 8)
		b.WriteByte(byte(v))
		p.pos += n
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos < len(p.s) && p.pos-start < 3 && p.s[p.pos] >= '0' && p.s[p.pos] <= '7' {
			p.pos++
		}
		v, _ := strconv.ParseUint(p.s[start:p.pos], 8, 16)
		b.WriteByte(byte(v))
	default:
		b.WriteByte(c)
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// firstString returns the first C-escaped string argument of a call, such as
// the path of chdir.
func firstString(text string) (string, error) {
	p := &argvParser{s: text}
	p.skipSpace()
	return p.str()
}
