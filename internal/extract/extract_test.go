// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildlog-cli/internal/cmdline"
	"buildlog-cli/internal/correlate"
	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/internal/inlinefile"
	"buildlog-cli/internal/subst"
	"buildlog-cli/pkg/invocation"
)

func mustParse(t *testing.T, opts Options, lines ...string) []invocation.Invocation {
	t.Helper()
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	invs, err := p.Parse(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return invs
}

func TestParser_Make(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := inlinefile.NewRegistry()
	got := mustParse(t, Options{
		Format:  correlate.FormatMake,
		Dialect: cmdline.Shell,
		Dir:     dir,
		Source:  "build.log",
		Files:   files,
	},
		"make[1]: Entering directory '"+dir+"/lib'",
		"cd obj && CC=gcc gcc -c ../a.c > a.log 2>&1",
		"echo -c ../b.c > b.rsp",
		"gcc @b.rsp",
		"make[1]: Leaving directory '"+dir+"/lib'",
		"ar rcs liba.a a.o",
	)

	want := []invocation.Invocation{
		{
			Args:   []string{"gcc", "-c", "../a.c"},
			Dir:    dir + "/lib/obj",
			Params: map[string]string{"CC": "gcc"},
			Redirections: []invocation.Redirection{
				{Op: invocation.RedirWrite, Dest: "a.log"},
				{Source: "2", Op: invocation.RedirMerge, Dest: "1"},
			},
			Line: 2,
		},
		{
			Args:         []string{"echo", "-c", "../b.c"},
			Dir:          dir + "/lib/obj",
			Redirections: []invocation.Redirection{{Op: invocation.RedirWrite, Dest: "b.rsp"}},
			Line:         3,
		},
		{Args: []string{"gcc", "-c", "../b.c"}, Dir: dir + "/lib/obj", Line: 4},
		{Args: []string{"ar", "rcs", "liba.a", "a.o"}, Dir: dir, Line: 6},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}

	wantFiles := []invocation.FileRecord{{Path: dir + "/lib/obj/b.rsp", Content: "-c ../b.c\n"}}
	if diff := cmp.Diff(wantFiles, files.Records()); diff != "" {
		t.Errorf("file records mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_DirectoryChangesCarryOver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  Options
		lines []string
		want  []string
	}{
		{
			name: "msbuild cd on its own line",
			opts: Options{Format: correlate.FormatMSBuild, Dialect: cmdline.Cmd, Dir: `C:\build`},
			lines: []string{
				`1>Project "C:\src\a.vcxproj" on node 1 (default targets).`,
				`1>  cd /D C:\build\sub`,
				`1>  cmake.exe -P x.cmake`,
			},
			want: []string{`cmake.exe@C:\build\sub`},
		},
		{
			name: "pushd and popd across lines",
			opts: Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: "/w"},
			lines: []string{
				"pushd gen",
				"protoc a.proto",
				"popd",
				"cc a.c",
			},
			want: []string{"protoc@/w/gen", "cc@/w"},
		},
		{
			name: "directory marker reseeds the stack",
			opts: Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: "/w"},
			lines: []string{
				"cd tmp",
				"make[1]: Entering directory '/w/lib'",
				"cc -c util.c",
				"make[1]: Leaving directory '/w/lib'",
				"ld -o app",
			},
			want: []string{"cc@/w/lib", "ld@/w"},
		},
		{
			name: "subshell changes stay local",
			opts: Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: "/w"},
			lines: []string{
				"(cd sub && gen)",
				"cc a.c",
			},
			want: []string{"gen@/w/sub", "cc@/w"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got []string
			for _, inv := range mustParse(t, tt.opts, tt.lines...) {
				got = append(got, inv.Program()+"@"+inv.Dir)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("program@dir mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParser_EchoToBothStreams(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := inlinefile.NewRegistry()
	got := mustParse(t, Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: dir, Files: files},
		"echo -DX=1 &> defs.rsp",
		"cc a.c @defs.rsp",
	)

	if len(got) != 2 || strings.Join(got[1].Args, " ") != "cc a.c -DX=1" {
		t.Errorf("invocations = %+v, want the &> file expanded into cc", got)
	}
	if content, ok := files.Lookup(dir + "/defs.rsp"); !ok || content != "-DX=1\n" {
		t.Errorf("Lookup(defs.rsp) = %q, %v; want synthesized content", content, ok)
	}
}

func TestParser_DiagnosticsAreLocated(t *testing.T) {
	t.Parallel()

	var got []diag.Diagnostic
	invs := mustParse(t, Options{
		Format:   correlate.FormatMake,
		Dialect:  cmdline.Shell,
		Dir:      t.TempDir(),
		Source:   "ci.log",
		Reporter: diag.ReporterFunc(func(d diag.Diagnostic) { got = append(got, d) }),
	},
		"popd",
		"gcc @missing.rsp",
	)

	if len(invs) != 1 || invs[0].Args[1] != "@missing.rsp" {
		t.Errorf("invocations = %+v, want the unresolved reference left in place", invs)
	}
	if len(got) != 2 {
		t.Fatalf("got %d diagnostics, want 2", len(got))
	}
	wantCodes := []string{diag.CodeDirStackUnderflow, diag.CodeRespFileUnresolved}
	for i, d := range got {
		if d.Code != wantCodes[i] || d.Source != "ci.log" || d.Line != i+1 || d.Dialect != "shell" {
			t.Errorf("diagnostic %d = %s (dialect %q), want %s at ci.log:%d", i, d, d.Dialect, wantCodes[i], i+1)
		}
	}
}

func TestParser_FatalLine(t *testing.T) {
	t.Parallel()

	p, err := New(Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: "/w", Source: "x.log"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	invs, err := p.Parse(context.Background(), strings.NewReader("cc ok.c\necho \"unterminated\ncc never.c\n"))
	if !errors.Is(err, cmdline.ErrInvalidSyntax) {
		t.Fatalf("Parse() error = %v, want ErrInvalidSyntax", err)
	}
	var lerr *LineError
	if !errors.As(err, &lerr) {
		t.Fatalf("Parse() error type = %T, want *LineError", err)
	}
	if lerr.Source != "x.log" || lerr.Line != 2 || lerr.Text != `echo "unterminated` || lerr.Dialect != cmdline.Shell {
		t.Errorf("LineError = %+v", lerr)
	}
	if len(invs) != 1 || invs[0].Program() != "cc" {
		t.Errorf("invocations before the failure = %+v, want cc ok.c", invs)
	}
}

func TestParser_LineReplacements(t *testing.T) {
	t.Parallel()

	repl, err := correlate.ParseReplacement("/build/[0-9a-f]+=/build/X")
	if err != nil {
		t.Fatalf("ParseReplacement() error: %v", err)
	}
	got := mustParse(t, Options{
		Format:           correlate.FormatNinja,
		Dialect:          cmdline.Shell,
		Dir:              "/out",
		LineReplacements: []correlate.Replacement{repl},
	}, "[1/1] cc -I/build/abc123/inc a.c")

	want := []invocation.Invocation{{Args: []string{"cc", "-I/build/X/inc", "a.c"}, Dir: "/out", Line: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_Strace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := inlinefile.NewRegistry()
	files.Write(dir+"/args.rsp", "-O2\na.c\n")
	lineRepl, err := correlate.ParseReplacement("cc=XX")
	if err != nil {
		t.Fatalf("ParseReplacement() error: %v", err)
	}

	got := mustParse(t, Options{
		Format:           correlate.FormatStrace,
		Dialect:          cmdline.Shell,
		Dir:              dir,
		Files:            files,
		LineReplacements: []correlate.Replacement{lineRepl},
	},
		`300 execve("/usr/bin/cc", ["cc", "@args.rsp"], 0x7ffc /* 20 vars */) = 0`,
		`300 execve("/usr/bin/true", [], 0x7ffc /* 20 vars */) = 0`,
	)

	want := []invocation.Invocation{{Args: []string{"cc", "-O2", "a.c"}, Dir: dir, Line: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_MSBuildCmd(t *testing.T) {
	t.Parallel()

	got := mustParse(t, Options{Format: correlate.FormatMSBuild, Dialect: cmdline.Cmd, Dir: `C:\build`},
		`1>Project "C:\src\app.vcxproj" on node 1 (default targets).`,
		"1>ClCompile:",
		`1>  cd /d C:\src\sub && cl.exe /c "my file.cpp"`,
	)

	want := []invocation.Invocation{{Args: []string{"cl.exe", "/c", "my file.cpp"}, Dir: `C:\src\sub`, Line: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_Substitution(t *testing.T) {
	t.Parallel()

	sub := &subst.Substituter{Env: []string{}}
	got := mustParse(t, Options{
		Format:       correlate.FormatMake,
		Dialect:      cmdline.Shell,
		Dir:          t.TempDir(),
		Substitution: sub,
	}, "cc $(echo -O2) a.c")
	if len(got) != 1 || strings.Join(got[0].Args, " ") != "cc -O2 a.c" {
		t.Errorf("invocations = %+v, want cc -O2 a.c", got)
	}

	p, err := New(Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: t.TempDir(), Substitution: sub})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_, err = p.Line(context.Background(), "cc $(exit 1)")
	if !errors.Is(err, subst.ErrSubstitution) {
		t.Errorf("Line() error = %v, want ErrSubstitution", err)
	}
	var lerr *LineError
	if !errors.As(err, &lerr) || lerr.Line != 1 {
		t.Errorf("Line() error = %#v, want *LineError at line 1", err)
	}
}

func TestParser_FinishCarriesLastLine(t *testing.T) {
	t.Parallel()

	got := mustParse(t, Options{Format: correlate.FormatMake, Dialect: cmdline.Shell, Dir: "/w"},
		"first",
		`second \`,
	)
	if len(got) != 2 || got[1].Line != 2 || got[1].Program() != "second" {
		t.Errorf("invocations = %+v, want the dangling continuation at line 2", got)
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Format: "bazel", Dialect: cmdline.Shell}); !errors.Is(err, correlate.ErrInvalidFormat) {
		t.Errorf("New() error = %v, want ErrInvalidFormat", err)
	}
	if _, err := New(Options{Format: correlate.FormatMake}); !errors.Is(err, cmdline.ErrInvalidDialect) {
		t.Errorf("New() error = %v, want ErrInvalidDialect", err)
	}
}

func TestSemanticsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  correlate.Format
		dialect cmdline.Dialect
		want    dirstack.Semantics
	}{
		{correlate.FormatMake, cmdline.Shell, dirstack.POSIX},
		{correlate.FormatMake, cmdline.Cmd, dirstack.Windows},
		{correlate.FormatNinja, cmdline.ShellOnCmd, dirstack.Windows},
		{correlate.FormatMSBuild, cmdline.Shell, dirstack.Windows},
		{correlate.FormatStrace, cmdline.Cmd, dirstack.POSIX},
	}

	for _, tt := range tests {
		if got := SemanticsFor(tt.format, tt.dialect); got != tt.want {
			t.Errorf("SemanticsFor(%s, %s) = %v, want %v", tt.format, tt.dialect, got, tt.want)
		}
	}
}
