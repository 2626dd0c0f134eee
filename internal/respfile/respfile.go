// SPDX-License-Identifier: MPL-2.0

// Package respfile expands `@file` response-file arguments in place.
package respfile

import (
	"fmt"
	"os"
	"strings"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/internal/inlinefile"
	"buildlog-cli/pkg/invocation"
)

const (
	// DefaultMarker prefixes a response-file argument.
	DefaultMarker = "@"
	// DefaultMaxDepth bounds recursive expansion.
	DefaultMaxDepth = 16
)

// Expander replaces a trailing response-file argument with the arguments
// read from that file, repeating while the new last argument is itself a
// response-file reference.
type Expander struct {
	Dialect   cmdline.Dialect
	Semantics dirstack.Semantics
	// Files holds synthesized content consulted when no real file exists.
	Files    *inlinefile.Registry
	Reporter diag.Reporter
	Marker   string
	MaxDepth int
	// ReadFile reads a real file. Nil uses os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Expand rewrites inv.Args in place. Unresolvable references are reported
// and left unexpanded; a tokenizer failure on file content is returned.
func (e *Expander) Expand(inv *invocation.Invocation) error {
	marker := e.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	reporter := diag.OrDiscard(e.Reporter)

	for depth := 0; len(inv.Args) > 1; depth++ {
		last := inv.Args[len(inv.Args)-1]
		if !strings.HasPrefix(last, marker) || len(last) == len(marker) {
			return nil
		}
		if depth >= maxDepth {
			reporter.Report(diag.Warn(diag.CodeRespFileDepth,
				"response file %s not expanded: nesting exceeds %d levels", last, maxDepth))
			return nil
		}
		path := dirstack.Resolve(inv.Dir, last[len(marker):], e.Semantics)
		content, err := e.load(path)
		if err != nil {
			reporter.Report(diag.Error(diag.CodeRespFileUnresolved, err,
				"response file %s not found on disk or in synthesized files", path))
			return nil
		}
		text := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(content)
		args, err := cmdline.Split(text, e.Dialect)
		if err != nil {
			return fmt.Errorf("response file %s: %w", path, err)
		}
		inv.Args = append(inv.Args[:len(inv.Args)-1:len(inv.Args)-1], args...)
	}
	return nil
}

func (e *Expander) load(path string) (string, error) {
	read := e.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(path)
	if err == nil {
		return string(data), nil
	}
	if e.Files != nil {
		if content, ok := e.Files.Lookup(path); ok {
			return content, nil
		}
	}
	return "", err
}
