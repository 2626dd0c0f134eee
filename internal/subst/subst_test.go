// SPDX-License-Identifier: MPL-2.0

package subst

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want string
	}{
		{"no groups", "cc -c a.c", "cc -c a.c"},
		{"dollar paren", "cc $(echo -O2) a.c", "cc -O2 a.c"},
		{"backtick", "cc `echo -g` a.c", "cc -g a.c"},
		{"nested", "cc $(echo $(echo -DX)) a.c", "cc -DX a.c"},
		{"trailing newlines trimmed", `cc "$(printf 'a\n\n')"`, `cc "a"`},
		{"inside double quotes", `echo "v=$(echo 1)"`, `echo "v=1"`},
		{"single quotes untouched", `echo '$(echo no)' $(echo yes)`, `echo '$(echo no)' yes`},
		{"escaped dollar untouched", `echo \$(echo no)`, `echo \$(echo no)`},
		{"arithmetic untouched", "echo $((1+2))", "echo $((1+2))"},
		{"parens in quotes", `x $(echo ")") y`, "x ) y"},
		{"empty output", "cc $(true) a.c", "cc  a.c"},
	}

	s := &Substituter{Env: []string{"PATH="}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.Apply(context.Background(), tt.line, t.TempDir())
			if err != nil {
				t.Fatalf("Apply(%q) error: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestApply_RunsInDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := New(time.Second, nil).Apply(context.Background(), "$(pwd)", dir)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got != dir {
		t.Errorf("Apply($(pwd)) = %q, want %q", got, dir)
	}
}

func TestApply_UsesEnv(t *testing.T) {
	t.Parallel()

	s := &Substituter{Env: []string{"CFLAGS=-O3"}}
	got, err := s.Apply(context.Background(), "cc $(echo $CFLAGS)", t.TempDir())
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if got != "cc -O3" {
		t.Errorf("Apply() = %q, want %q", got, "cc -O3")
	}
}

func TestApply_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		line     string
		exitCode int
	}{
		{"non-zero exit", "cc $(exit 3)", 3},
		{"parse error", "cc $(if)", 0},
		{"unterminated group", "cc $(echo", 0},
		{"unterminated backtick", "cc `echo", 0},
	}

	s := &Substituter{Env: []string{}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.Apply(context.Background(), tt.line, t.TempDir())
			if !errors.Is(err, ErrSubstitution) {
				t.Fatalf("Apply(%q) error = %v, want ErrSubstitution", tt.line, err)
			}
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("Apply(%q) error type = %T, want *Error", tt.line, err)
			}
			if serr.ExitCode != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", serr.ExitCode, tt.exitCode)
			}
		})
	}
}

func TestApply_Timeout(t *testing.T) {
	t.Parallel()

	s := &Substituter{Timeout: 50 * time.Millisecond, Env: []string{}}
	_, err := s.Apply(context.Background(), "$(while true; do :; done)", t.TempDir())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Apply() error = %v, want a deadline error", err)
	}
	if !errors.Is(err, ErrSubstitution) {
		t.Errorf("Apply() error = %v, want ErrSubstitution", err)
	}
}
