// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/config"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/extract"
	"buildlog-cli/internal/issue"
	"buildlog-cli/internal/subst"
	"buildlog-cli/internal/testutil"
	"buildlog-cli/pkg/invocation"
)

// staticConfig is a ConfigProvider that returns a fixed configuration.
type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	cfg := *s.cfg
	return &cfg, nil
}

// run executes the command tree in-process and returns stdout, stderr and
// the command error.
func run(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, string, error) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: cfg},
		Stdin:  strings.NewReader(stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestParse_FlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Output = "yaml"
	stdout, stderr, err := run(t, cfg, "cc -c a.c\n", "parse", "-C", "/w", "-o", "jsonl", "-")
	if err != nil {
		t.Fatalf("parse error: %v\nstderr: %s", err, stderr)
	}
	if want := `{"args":["cc","-c","a.c"],"dir":"/w","line":1}` + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestParse_ReplacementsConcatenate(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Output = "jsonl"
	cfg.Replacements = []config.ReplacementConfig{{Pattern: `/tmp/build-[0-9]+`, Replacement: "/tmp/build"}}
	stdout, _, err := run(t, cfg, "cc -I/tmp/build-42/inc -c a.c\n",
		"parse", "-C", "/w", "--replace", `/tmp/build=$$BUILD`, "-")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if want := `{"args":["cc","-I$BUILD/inc","-c","a.c"],"dir":"/w","line":1}` + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestParse_Strict(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, nil, "popd\ncc a.c\n", "parse", "--strict", "-C", "/w", "-")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitDiagnostics {
		t.Fatalf("parse error = %v, want exit status %d", err, exitDiagnostics)
	}
	if !strings.Contains(stderr, "[dirstack_underflow]") {
		t.Errorf("stderr = %q, want the rendered diagnostic", stderr)
	}

	if _, _, err := run(t, nil, "popd\ncc a.c\n", "parse", "-C", "/w", "-"); err != nil {
		t.Errorf("parse without --strict error = %v, want nil", err)
	}
}

func TestParse_InvalidFlag(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, nil, "", "parse", "-d", "fish", "-")
	if issue.IssueOf(err) != issue.InvalidFlagId {
		t.Errorf("IssueOf(%v) = %d, want InvalidFlagId", err, issue.IssueOf(err))
	}
	if !errors.Is(err, cmdline.ErrInvalidDialect) {
		t.Errorf("error = %v, want ErrInvalidDialect", err)
	}
	if !strings.Contains(stderr, "Run 'buildlog parse --help'") {
		t.Errorf("stderr = %q, want suggestions", stderr)
	}

	_, _, err = run(t, nil, "", "parse", "--replace", "no-separator", "-")
	if issue.IssueOf(err) != issue.InvalidFlagId {
		t.Errorf("IssueOf(%v) = %d, want InvalidFlagId", err, issue.IssueOf(err))
	}
}

func TestParse_ConfigError(t *testing.T) {
	t.Parallel()

	cause := issue.NewErrorContext().
		WithOperation("load configuration").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(errors.New("boom")).
		BuildError()
	app := NewApp(Dependencies{
		Config: staticConfig{err: cause},
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})
	root := NewRootCommand(app)
	root.SetArgs([]string{"parse", "x.log"})
	if err := root.ExecuteContext(context.Background()); issue.IssueOf(err) != issue.ConfigLoadFailedId {
		t.Errorf("parse error = %v, want ConfigLoadFailedId", err)
	}
}

func TestParse_OutputInArgumentOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var args []string
	var want strings.Builder
	for i := range 8 {
		name := testutil.MustWriteLog(t, dir, fmt.Sprintf("%d.log", i), fmt.Sprintf("cc -c f%d.c", i))
		args = append(args, name)
		fmt.Fprintf(&want, "cd /w && cc -c f%d.c\n", i)
	}

	stdout, _, err := run(t, nil, "", append([]string{"parse", "-j", "3", "-C", "/w", "-o", "text"}, args...)...)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if stdout != want.String() {
		t.Errorf("stdout = %q, want %q", stdout, want.String())
	}
}

func TestParse_LogsSeeOnlyTheirOwnFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := testutil.MustWriteLog(t, dir, "first.log", "echo -O2 > x.rsp\ncc a.c @x.rsp\n")
	second := testutil.MustWriteLog(t, dir, "second.log", "echo -g >> x.rsp\ncc b.c @x.rsp\n")
	filesOut := filepath.Join(dir, "files.json")

	for range 5 {
		stdout, _, err := run(t, nil, "", "parse", "-j", "2", "-C", "/w", "-o", "json", "--files-out", filesOut, first, second)
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}

		var invs []invocation.Invocation
		if err := json.Unmarshal([]byte(stdout), &invs); err != nil {
			t.Fatalf("decode stdout: %v", err)
		}
		var compiles []string
		for _, inv := range invs {
			if inv.Args[0] == "cc" {
				compiles = append(compiles, strings.Join(inv.Args, " "))
			}
		}
		if diff := cmp.Diff([]string{"cc a.c -O2", "cc b.c -g"}, compiles); diff != "" {
			t.Errorf("compile records mismatch (-want +got):\n%s", diff)
		}

		data, err := os.ReadFile(filesOut)
		if err != nil {
			t.Fatalf("read files-out: %v", err)
		}
		var files []invocation.FileRecord
		if err := json.Unmarshal(data, &files); err != nil {
			t.Fatalf("decode files-out: %v", err)
		}
		want := []invocation.FileRecord{{Path: "/w/x.rsp", Content: "-O2\n-g\n"}}
		if diff := cmp.Diff(want, files); diff != "" {
			t.Errorf("files-out mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestResolveInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := testutil.MustWriteLog(t, dir, "logs/b.log", "x")
	a := testutil.MustWriteLog(t, dir, "logs/sub/a.log", "x")
	testutil.MustWriteLog(t, dir, "logs/notes.txt", "x")

	got, err := resolveInputs([]string{"-", filepath.Join(dir, "logs", "**", "*.log"), "plain.log"})
	if err != nil {
		t.Fatalf("resolveInputs() error: %v", err)
	}
	want := []string{"-", b, a, "plain.log"}
	if !slices.Equal(got, want) {
		t.Errorf("resolveInputs() = %v, want %v", got, want)
	}

	if _, err := resolveInputs([]string{"-", "-"}); !errors.Is(err, errStdinTwice) {
		t.Errorf("resolveInputs(-, -) error = %v, want errStdinTwice", err)
	}
	if _, err := resolveInputs([]string{filepath.Join(dir, "*.none")}); issue.IssueOf(err) != issue.LogNotFoundId {
		t.Errorf("resolveInputs(no match) error = %v, want LogNotFoundId", err)
	}
}

func TestClassifyParseError(t *testing.T) {
	t.Parallel()

	substErr := &extract.LineError{Source: "a.log", Line: 3, Err: &subst.Error{Command: "false", ExitCode: 1}}
	if got := issue.IssueOf(classifyParseError(substErr)); got != issue.SubstitutionFailedId {
		t.Errorf("substitution failure classified as %d", got)
	}

	syntaxErr := &extract.LineError{Source: "a.log", Line: 4, Err: cmdline.ErrInvalidSyntax}
	classified := classifyParseError(syntaxErr)
	if got := issue.IssueOf(classified); got != issue.LogParseFailedId {
		t.Errorf("syntax failure classified as %d", got)
	}
	if !errors.Is(classified, cmdline.ErrInvalidSyntax) {
		t.Errorf("classified error %v lost its cause", classified)
	}

	plain := errors.New("disk on fire")
	if got := classifyParseError(plain); got != plain {
		t.Errorf("classifyParseError(plain) = %v, want it unchanged", got)
	}
}

func TestInitialDir(t *testing.T) {
	t.Parallel()

	for _, dir := range []string{"/abs/path", `C:\src`} {
		if got, err := initialDir(dir); err != nil || got != dir {
			t.Errorf("initialDir(%q) = %q, %v", dir, got, err)
		}
	}
	got, err := initialDir("rel")
	if err != nil || !filepath.IsAbs(got) || filepath.Base(got) != "rel" {
		t.Errorf("initialDir(rel) = %q, %v; want an absolute path", got, err)
	}
}

func TestRenderDiagnostics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderDiagnostics(&buf, []diag.Diagnostic{
		diag.Warn(diag.CodeMakeDirMismatch, "late"),
		{Severity: diag.SeverityError, Code: diag.CodeRespFileUnresolved, Message: "second log", Source: "b.log", Line: 1},
		{Severity: diag.SeverityWarning, Code: diag.CodeDirStackUnderflow, Message: "first log line 9", Source: "a.log", Line: 9},
		{Severity: diag.SeverityWarning, Code: diag.CodeDirStackUnderflow, Message: "first log line 2", Source: "a.log", Line: 2},
	}, []string{"a.log", "b.log"})

	out := buf.String()
	order := []string{"4 diagnostic(s)", "late [make_dir_mismatch]", "a.log:2:", "a.log:9:", "b.log:1: error second log [respfile_unresolved]"}
	last := -1
	for _, s := range order {
		i := strings.Index(out, s)
		if i <= last {
			t.Fatalf("%q missing or out of order in:\n%s", s, out)
		}
		last = i
	}

	buf.Reset()
	renderDiagnostics(&buf, nil, nil)
	if buf.Len() != 0 {
		t.Errorf("renderDiagnostics(nil) wrote %q", buf.String())
	}
}
