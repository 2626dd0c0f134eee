// SPDX-License-Identifier: MPL-2.0

// Package inlinefile materializes files that build tools write with shell
// echo instead of real file I/O. Later commands, typically through response
// files, read that content back from the Registry.
package inlinefile

import (
	"os"
	"strings"

	"buildlog-cli/internal/dirstack"
	"buildlog-cli/pkg/invocation"
)

// Synthesizer records the output of `echo ... > file` commands.
type Synthesizer struct {
	// Registry receives the synthesized content.
	Registry *Registry
	// CmdEcho also accepts the command-processor `echo.` form.
	CmdEcho bool
	// Semantics resolves redirection targets against the record directory.
	Semantics dirstack.Semantics
	// Exists reports whether a path exists on disk. Nil uses os.Stat.
	Exists func(path string) bool
}

// Apply stores the echoed text when inv writes or appends to a file that
// does not exist on disk. It returns true when content was stored. The
// invocation itself is never modified.
func (s *Synthesizer) Apply(inv *invocation.Invocation) bool {
	if s.Registry == nil || !s.isEcho(inv.Program()) {
		return false
	}
	stored := false
	content := strings.Join(inv.Args[1:], " ") + "\n"
	for _, r := range inv.Redirections {
		if !r.Op.IsOutput() || r.Source == "2" || isSink(r.Dest) {
			continue
		}
		path := dirstack.Resolve(inv.Dir, r.Dest, s.Semantics)
		if s.exists(path) {
			continue
		}
		if r.Op == invocation.RedirAppend {
			s.Registry.Append(path, content)
		} else {
			s.Registry.Write(path, content)
		}
		stored = true
	}
	return stored
}

func (s *Synthesizer) isEcho(prog string) bool {
	if strings.EqualFold(prog, "echo") {
		return true
	}
	return s.CmdEcho && strings.EqualFold(prog, "echo.")
}

func (s *Synthesizer) exists(path string) bool {
	if s.Exists != nil {
		return s.Exists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// isSink reports destinations that are not files: descriptors and null devices.
func isSink(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "&") {
		return true
	}
	switch strings.ToLower(dest) {
	case "nul", "/dev/null", "/dev/stdout", "/dev/stderr":
		return true
	}
	return false
}
