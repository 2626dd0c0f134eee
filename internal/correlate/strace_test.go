// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"errors"
	"regexp"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildlog-cli/internal/diag"
)

func TestStrace_ResumedCallKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{Dir: "/src"})
	got := feed(t, s,
		`10 execve("/usr/bin/gcc", ["gcc", "-c" <unfinished ...>`,
		`11 execve("/usr/bin/as", ["as", "x.s"], 0x7ffd /* 12 vars */) = 0`,
		`12 write(1, "hi\n", 3)                   = 3`,
		`10 <... execve resumed>, "a.c"], 0x7ffd /* 12 vars */) = 0`,
		`13 execve("/usr/bin/ld", ["ld", "a.o"], 0x7ffd /* 12 vars */) = 0`,
	)

	want := []Target{
		{Args: []string{"gcc", "-c", "a.c"}, Dir: "/src", RawDir: "/src"},
		{Args: []string{"as", "x.s"}, Dir: "/src", RawDir: "/src"},
		{Args: []string{"ld", "a.o"}, Dir: "/src", RawDir: "/src"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestStrace_BlockedUntilResumed(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{Dir: "/src"})
	for _, line := range []string{
		`10 execve("/bin/cc", ["cc" <unfinished ...>`,
		`11 execve("/bin/as", ["as"], 0x1 /* 1 var */) = 0`,
	} {
		targets, err := s.Line(line)
		if err != nil {
			t.Fatalf("Line() error: %v", err)
		}
		if len(targets) != 0 {
			t.Fatalf("Line(%q) emitted %+v while an earlier call is unfinished", line, targets)
		}
	}
	targets, err := s.Line(`10 <... execve resumed>], 0x1 /* 1 var */) = 0`)
	if err != nil {
		t.Fatalf("Line() error: %v", err)
	}
	if len(targets) != 2 || targets[0].Args[0] != "cc" || targets[1].Args[0] != "as" {
		t.Errorf("targets after resume = %+v, want cc then as", targets)
	}
}

func TestStrace_DirectoryTracking(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{Dir: "/src"})
	got := feed(t, s,
		`100 chdir("build")                      = 0`,
		`100 chdir("missing")                    = -1 ENOENT (No such file or directory)`,
		`100 clone(child_stack=NULL, flags=CLONE_CHILD_CLEARTID|SIGCHLD <unfinished ...>`,
		`101 execve("/bin/cc", ["cc", "-c", "a.c"], 0x7ff /* 3 vars */) = 0`,
		`100 <... clone resumed>, child_tidptr=0x7f) = 101`,
		`[pid   101] chdir("/tmp") = 0`,
		`100 vfork( <unfinished ...>`,
		`100 <... vfork resumed>)                = 102`,
		`[pid   102] execve("/bin/ld", ["ld"], 0x7ff /* 3 vars */) = 0`,
		`101 execve("/bin/true", ["true"], 0x7ff /* 3 vars */) = 0`,
		`[pid 101] +++ exited with 0 +++`,
		`101 execve("/bin/false", ["false"], 0x7ff /* 3 vars */) = 0`,
	)

	var dirs []string
	for _, tg := range got {
		dirs = append(dirs, tg.Args[0]+"@"+tg.Dir)
	}
	want := []string{"cc@/src/build", "ld@/src/build", "true@/tmp", "false@/src"}
	if !slices.Equal(dirs, want) {
		t.Errorf("targets = %v, want %v", dirs, want)
	}
}

func TestStrace_FailedExecAndOtherCalls(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{Dir: "/src"})
	got := feed(t, s,
		`execve("/usr/local/bin/cc", ["cc", "a.c"], 0x7ff /* 3 vars */) = -1 ENOENT (No such file or directory)`,
		`execve("/usr/bin/cc", ["cc", "a.c"], 0x7ff /* 3 vars */) = 0`,
		`openat(AT_FDCWD, "a.c", O_RDONLY)     = 3`,
		`--- SIGCHLD {si_signo=SIGCHLD, si_code=CLD_EXITED} ---`,
		`clone(child_stack=NULL, flags=SIGCHLD) = 5`,
		`+++ killed by SIGKILL +++`,
	)

	if len(got) != 1 || !slices.Equal(got[0].Args, []string{"cc", "a.c"}) {
		t.Errorf("targets = %+v, want only the successful execve", got)
	}
}

func TestStrace_ExecveatAndReplacements(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{
		Dir: "/src",
		TraceReplacements: []Replacement{
			{Pattern: regexp.MustCompile(`/opt/sdk-[0-9.]+`), Replacement: "$$SDK"},
		},
	})
	got := feed(t, s,
		`7 12:00:01.000001 execveat(AT_FDCWD, "/opt/sdk-1.2/cc", ["cc", "-I/opt/sdk-1.2/inc"], 0x1 /* 0 vars */, 0) = 0`,
	)
	if len(got) != 1 || !slices.Equal(got[0].Args, []string{"cc", "-I$SDK/inc"}) {
		t.Errorf("targets = %+v, want replaced include path", got)
	}
}

func TestStrace_TruncatedAndOrphan(t *testing.T) {
	t.Parallel()

	var codes []string
	s := NewStrace(Options{Dir: "/src", Reporter: codeRecorder(&codes)})
	got := feed(t, s,
		`20 <... read resumed>"x", 1) = 1`,
		`21 execve("/bin/cc", ["cc" <unfinished ...>`,
		`22 execve("/bin/as", ["as"], 0x1 /* 1 var */) = 0`,
	)

	if len(got) != 1 || got[0].Args[0] != "as" {
		t.Errorf("targets = %+v, want the complete call queued behind the truncated one", got)
	}
	if want := []string{diag.CodeStraceOrphanResume, diag.CodeStraceTruncated}; !slices.Equal(codes, want) {
		t.Errorf("diagnostics = %v, want %v", codes, want)
	}
}

func TestStrace_MalformedArgvIsFatal(t *testing.T) {
	t.Parallel()

	s := NewStrace(Options{Dir: "/src"})
	_, err := s.Line(`execve("/bin/cc", ["cc", "a.c), 0x1) = 0`)
	if !errors.Is(err, ErrArgv) {
		t.Errorf("Line() error = %v, want ErrArgv", err)
	}
}

func TestStrace_OmittedArgvIsReported(t *testing.T) {
	t.Parallel()

	var codes []string
	s := NewStrace(Options{Dir: "/src", Reporter: codeRecorder(&codes)})
	got := feed(t, s,
		`10 execve("/usr/bin/cc", 0x7ffd3a2c1e40, 0x7ffd3a2c1e58 /* 12 vars */) = 0`,
		`11 execve("/usr/bin/ld", ["ld", "a.o"], 0x7ffd /* 12 vars */) = 0`,
	)

	if len(got) != 1 || !slices.Equal(got[0].Args, []string{"ld", "a.o"}) {
		t.Errorf("targets = %+v, want only the printed ld call", got)
	}
	if want := []string{diag.CodeStraceArgvOmitted}; !slices.Equal(codes, want) {
		t.Errorf("diagnostics = %v, want %v", codes, want)
	}
}
