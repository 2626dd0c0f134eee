// SPDX-License-Identifier: MPL-2.0

package encode

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"buildlog-cli/pkg/invocation"
)

const (
	// JSON writes an indented array.
	JSON Format = "json"
	// JSONL writes one compact object per line.
	JSONL Format = "jsonl"
	// YAML writes a sequence document.
	YAML Format = "yaml"
	// TOML writes an array of tables.
	TOML Format = "toml"
	// Text writes one shell command line per record.
	Text Format = "text"
)

// ErrInvalidFormat is returned when an output format name is not recognized.
var ErrInvalidFormat = errors.New("invalid output format")

type (
	// Format selects the output encoding.
	Format string

	// InvalidFormatError is returned when an output format name is not
	// recognized. It wraps ErrInvalidFormat for errors.Is() compatibility.
	InvalidFormatError struct {
		Value string
	}

	tomlInvocations struct {
		Invocation []invocation.Invocation `toml:"invocation"`
	}

	tomlFiles struct {
		File []invocation.FileRecord `toml:"file"`
	}
)

// Error implements the error interface for InvalidFormatError.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid output format %q (valid: %s)", e.Value, strings.Join(FormatNames(), ", "))
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// FormatNames returns the supported output format names.
func FormatNames() []string {
	return []string{string(JSON), string(JSONL), string(YAML), string(TOML), string(Text)}
}

// ParseFormat converts a name into a Format.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if err := f.Validate(); err != nil {
		return "", &InvalidFormatError{Value: name}
	}
	return f, nil
}

// Validate returns nil if the Format is known.
func (f Format) Validate() error {
	switch f {
	case JSON, JSONL, YAML, TOML, Text:
		return nil
	default:
		return &InvalidFormatError{Value: string(f)}
	}
}

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// Write encodes invs to w.
func Write(w io.Writer, format Format, invs []invocation.Invocation) error {
	if invs == nil {
		invs = []invocation.Invocation{}
	}
	switch format {
	case JSON:
		return writeJSON(w, invs)
	case JSONL:
		return writeJSONL(w, invs)
	case YAML:
		return writeYAML(w, invs)
	case TOML:
		return writeTOML(w, tomlInvocations{Invocation: invs})
	case Text:
		bw := bufio.NewWriter(w)
		for i := range invs {
			fmt.Fprintln(bw, CommandLine(&invs[i]))
		}
		return bw.Flush()
	default:
		return &InvalidFormatError{Value: string(format)}
	}
}

// WriteFiles encodes synthesized file records to w. Text output renders each
// record as a heredoc.
func WriteFiles(w io.Writer, format Format, files []invocation.FileRecord) error {
	if files == nil {
		files = []invocation.FileRecord{}
	}
	switch format {
	case JSON:
		return writeJSON(w, files)
	case JSONL:
		return writeJSONL(w, files)
	case YAML:
		return writeYAML(w, files)
	case TOML:
		return writeTOML(w, tomlFiles{File: files})
	case Text:
		bw := bufio.NewWriter(w)
		for _, f := range files {
			writeHeredoc(bw, f)
		}
		return bw.Flush()
	default:
		return &InvalidFormatError{Value: string(format)}
	}
}

// CommandLine renders inv as a single shell line that reproduces it:
// `cd DIR && NAME=V prog args... redirections`.
func CommandLine(inv *invocation.Invocation) string {
	var b strings.Builder
	if inv.Dir != "" {
		b.WriteString("cd ")
		b.WriteString(shellquote.Join(inv.Dir))
		b.WriteString(" && ")
	}
	for _, name := range inv.SortedParamNames() {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(shellquote.Join(inv.Params[name]))
		b.WriteByte(' ')
	}
	b.WriteString(shellquote.Join(inv.Args...))
	for _, r := range inv.Redirections {
		b.WriteByte(' ')
		b.WriteString(r.Symbol())
		if r.Dest != "" {
			b.WriteString(shellquote.Join(r.Dest))
		}
	}
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("failed to encode JSON line: %w", err)
		}
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func writeTOML(w io.Writer, v any) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return nil
}

// writeHeredoc picks a delimiter that does not occur as a line of the content.
func writeHeredoc(w io.Writer, f invocation.FileRecord) {
	delim := "EOF"
	lines := strings.Split(f.Content, "\n")
	for n := 1; slices.Contains(lines, delim); n++ {
		delim = fmt.Sprintf("EOF_%d", n)
	}
	fmt.Fprintf(w, "cat > %s <<'%s'\n", shellquote.Join(f.Path), delim)
	io.WriteString(w, f.Content)
	if !strings.HasSuffix(f.Content, "\n") {
		io.WriteString(w, "\n")
	}
	fmt.Fprintln(w, delim)
}
