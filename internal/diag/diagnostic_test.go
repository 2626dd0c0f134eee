// SPDX-License-Identifier: MPL-2.0

package diag

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

func TestDiagnostic_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		diag Diagnostic
		want string
	}{
		{
			name: "with source and line",
			diag: Diagnostic{Severity: SeverityWarning, Code: CodeDirStackUnderflow, Message: "popd on initial directory", Source: "build.log", Line: 7},
			want: "build.log:7: warning [dirstack_underflow] popd on initial directory",
		},
		{
			name: "line only with cause",
			diag: Diagnostic{Severity: SeverityError, Code: CodeRespFileUnresolved, Message: "cannot resolve @args", Line: 3, Cause: errors.New("not found")},
			want: "line 3: error [respfile_unresolved] cannot resolve @args: not found",
		},
		{
			name: "no location",
			diag: Warn(CodeStraceTruncated, "%d entries dropped", 2),
			want: "warning [strace_truncated] 2 entries dropped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.diag.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCollector_ReportAndLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := NewCollector(log.NewWithOptions(&buf, log.Options{Level: log.WarnLevel}))
	c.Report(Warn(CodeMakeDirMismatch, "leaving %s", "/b"))
	c.Report(Error(CodeMSBuildUnknownNode, nil, "node %d", 4))

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if got := c.Count(SeverityError); got != 1 {
		t.Errorf("Count(error) = %d, want 1", got)
	}
	if got, want := c.Codes(), []string{CodeMakeDirMismatch, CodeMSBuildUnknownNode}; !slices.Equal(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}
	out := buf.String()
	if !strings.Contains(out, "leaving /b") || !strings.Contains(out, "code=msbuild_unknown_node") {
		t.Errorf("log output missing diagnostics:\n%s", out)
	}

	snapshot := c.Diagnostics()
	snapshot[0].Code = "mutated"
	if c.Diagnostics()[0].Code != CodeMakeDirMismatch {
		t.Error("Diagnostics() must return a copy")
	}
}

func TestCollector_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				c.Report(Warn(CodeStraceOrphanResume, "x"))
			}
		}()
	}
	wg.Wait()
	if got := c.Len(); got != 400 {
		t.Errorf("Len() = %d, want 400", got)
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	OrDiscard(nil).Report(Warn("x", "ignored"))

	var got []Diagnostic
	r := OrDiscard(ReporterFunc(func(d Diagnostic) { got = append(got, d) }))
	r.Report(Warn("y", "kept"))
	if len(got) != 1 || got[0].Code != "y" {
		t.Errorf("OrDiscard(r) did not forward: %v", got)
	}
}
