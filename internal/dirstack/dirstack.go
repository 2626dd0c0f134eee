// SPDX-License-Identifier: MPL-2.0

// Package dirstack tracks the working directory of a build log as a stack of
// directories. Paths are resolved lexically with either POSIX or Windows
// semantics, independent of the host operating system, because the logs being
// parsed may come from a different machine.
package dirstack

import (
	"errors"
	"path"
	"strings"
)

const (
	// POSIX resolves slash-separated paths.
	POSIX Semantics = iota
	// Windows resolves drive-letter paths with either separator and renders
	// results with backslashes.
	Windows
)

// ErrUnderflow is returned when popping the initial directory.
var ErrUnderflow = errors.New("directory stack underflow")

type (
	// Semantics selects the path resolution rules.
	Semantics int

	// Stack is a working-directory stack. It is never empty; the bottom entry
	// is the initial directory.
	Stack struct {
		dirs []string
		sem  Semantics
	}
)

// New creates a stack seeded with initial.
func New(initial string, sem Semantics) *Stack {
	return &Stack{dirs: []string{Clean(initial, sem)}, sem: sem}
}

// Top returns the current directory.
func (s *Stack) Top() string { return s.dirs[len(s.dirs)-1] }

// Len returns the number of entries, including the initial directory.
func (s *Stack) Len() int { return len(s.dirs) }

// Push resolves p against the current directory and makes it current.
func (s *Stack) Push(p string) string {
	dir := s.Resolve(p)
	s.dirs = append(s.dirs, dir)
	return dir
}

// Replace resolves p against the current directory and replaces the top.
func (s *Stack) Replace(p string) string {
	dir := s.Resolve(p)
	s.dirs[len(s.dirs)-1] = dir
	return dir
}

// Pop removes the current directory. The initial directory cannot be popped.
func (s *Stack) Pop() error {
	if len(s.dirs) == 1 {
		return ErrUnderflow
	}
	s.dirs = s.dirs[:len(s.dirs)-1]
	return nil
}

// Sub returns a fresh stack seeded with the current directory. Changes made
// to it never affect s.
func (s *Stack) Sub() *Stack {
	return &Stack{dirs: []string{s.Top()}, sem: s.sem}
}

// Reset drops everything above the initial directory and reseeds it with dir.
func (s *Stack) Reset(dir string) {
	s.dirs = append(s.dirs[:0], Clean(dir, s.sem))
}

// Resolve resolves p against the current directory without changing the stack.
func (s *Stack) Resolve(p string) string {
	return Resolve(s.Top(), p, s.sem)
}

// Resolve joins p onto base unless p is absolute, then cleans the result.
func Resolve(base, p string, sem Semantics) string {
	if sem == Windows {
		return resolveWindows(base, p)
	}
	if p == "" {
		return path.Clean(base)
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(base, p)
}

// Clean normalizes p under the given semantics.
func Clean(p string, sem Semantics) string {
	if sem == Windows {
		return resolveWindows("", p)
	}
	return path.Clean(p)
}

// IsAbs reports whether p is absolute under the given semantics.
func IsAbs(p string, sem Semantics) bool {
	if sem != Windows {
		return path.IsAbs(p)
	}
	s := strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(s, "//") {
		return true
	}
	return len(s) >= 3 && hasDrive(s) && s[2] == '/'
}

// resolveWindows works on a slash-separated copy and converts back.
func resolveWindows(base, p string) string {
	b := strings.ReplaceAll(base, `\`, "/")
	q := strings.ReplaceAll(p, `\`, "/")

	var joined string
	switch {
	case q == "":
		joined = b
	case strings.HasPrefix(q, "//"):
		joined = q
	case hasDrive(q) && len(q) > 2 && q[2] == '/':
		joined = q
	case hasDrive(q):
		// Drive-relative ("C:foo"): relative to base when it is on the same
		// drive, otherwise to that drive's root.
		if hasDrive(b) && strings.EqualFold(b[:2], q[:2]) {
			joined = b + "/" + q[2:]
		} else {
			joined = q[:2] + "/" + q[2:]
		}
	case strings.HasPrefix(q, "/"):
		joined = volume(b) + q
	default:
		joined = b + "/" + q
	}
	return strings.ReplaceAll(cleanWindows(joined), "/", `\`)
}

func cleanWindows(p string) string {
	vol := volume(p)
	rest := p[len(vol):]
	if rest == "" {
		if vol == "" {
			return "."
		}
		return vol + "/"
	}
	cleaned := path.Clean(rest)
	if vol != "" && !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return vol + cleaned
}

// volume returns the drive ("C:") or UNC host/share ("//srv/share") prefix.
func volume(p string) string {
	if hasDrive(p) {
		return p[:2]
	}
	if strings.HasPrefix(p, "//") {
		parts := strings.SplitN(p[2:], "/", 3)
		if len(parts) >= 2 {
			return "//" + parts[0] + "/" + parts[1]
		}
		return p
	}
	return ""
}

func hasDrive(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
