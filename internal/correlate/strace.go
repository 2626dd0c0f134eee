// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/internal/ordered"
)

var (
	stracePrefixRE = regexp.MustCompile(`^(?:\[pid\s+(\d+)\]\s*|(\d+)\s+)?(?:\d+:\d+:\d+(?:\.\d+)?\s+|\d+\.\d+\s+)?`)
	unfinishedRE   = regexp.MustCompile(`^(\w+)\((.*?)\s*<unfinished \.\.\.>\s*$`)
	resumedRE      = regexp.MustCompile(`^<\.\.\. (\w+) resumed>(.*)$`)
	completeRE     = regexp.MustCompile(`^(\w+)\((.*)$`)
	resultRE       = regexp.MustCompile(`^(.*)\)\s+=\s+(\S+)`)
	exitRE         = regexp.MustCompile(`^\+\+\+ (?:exited with -?\d+|killed by .*) \+\+\+$`)
)

type (
	// syscall is one traced call. text holds everything after "name(", and
	// grows when a resumed line completes an unfinished call.
	syscall struct {
		pid  int
		name string
		text string
	}

	// Strace correlates `strace -f` output. Calls reported as unfinished and
	// later resumed are reassembled in arrival order; successful execve calls
	// become pre-tokenized targets in the calling process's directory.
	Strace struct {
		initial  string
		pending  ordered.Buffer[syscall]
		dirs     map[int]string
		repls    []Replacement
		reporter diag.Reporter
		logger   *log.Logger
	}
)

// NewStrace creates a process-trace correlator.
func NewStrace(opts Options) *Strace {
	return &Strace{
		initial:  dirstack.Clean(opts.Dir, dirstack.POSIX),
		dirs:     make(map[int]string),
		repls:    opts.TraceReplacements,
		reporter: diag.OrDiscard(opts.Reporter),
		logger:   loggerOrDiscard(opts.Logger),
	}
}

// Dir returns the cached directory of pid.
func (s *Strace) Dir(pid int) string {
	if dir, ok := s.dirs[pid]; ok {
		return dir
	}
	return s.initial
}

// Line implements Correlator.
func (s *Strace) Line(text string) ([]Target, error) {
	text = strings.TrimRight(text, "\r")
	prefix := stracePrefixRE.FindStringSubmatch(text)
	pid := 0
	if prefix[1] != "" {
		pid, _ = strconv.Atoi(prefix[1])
	} else if prefix[2] != "" {
		pid, _ = strconv.Atoi(prefix[2])
	}
	body := strings.TrimSpace(text[len(prefix[0]):])

	switch {
	case body == "", strings.HasPrefix(body, "---"):
		return nil, nil
	case exitRE.MatchString(body):
		s.pending.Push(syscall{pid: pid, name: "exit"}, true)
	default:
		if m := unfinishedRE.FindStringSubmatch(body); m != nil {
			s.pending.Push(syscall{pid: pid, name: m[1], text: m[2]}, false)
			return nil, nil
		}
		if m := resumedRE.FindStringSubmatch(body); m != nil {
			slot := s.pending.FindPending(func(c syscall) bool { return c.pid == pid && c.name == m[1] })
			if slot == nil {
				s.reporter.Report(diag.Warn(diag.CodeStraceOrphanResume,
					"pid %d resumed %s without an unfinished call", pid, m[1]))
				return nil, nil
			}
			slot.Value().text += m[2]
			slot.Complete()
			break
		}
		if m := completeRE.FindStringSubmatch(body); m != nil {
			s.pending.Push(syscall{pid: pid, name: m[1], text: m[2]}, true)
			break
		}
		return nil, nil
	}
	return s.interpret(s.pending.Drain())
}

// Finish implements Correlator. Unfinished calls are dropped; complete calls
// queued behind them are still interpreted.
func (s *Strace) Finish() ([]Target, error) {
	done, dropped := s.pending.Close()
	if len(dropped) > 0 {
		names := make([]string, len(dropped))
		for i, c := range dropped {
			names[i] = strconv.Itoa(c.pid) + ":" + c.name
		}
		s.reporter.Report(diag.Warn(diag.CodeStraceTruncated,
			"%d unfinished calls dropped at end of trace (%s)", len(dropped), strings.Join(names, ", ")))
	}
	out, err := s.interpret(done)
	s.dirs = make(map[int]string)
	return out, err
}

func (s *Strace) interpret(calls []syscall) ([]Target, error) {
	var out []Target
	for _, c := range calls {
		if c.name == "exit" {
			delete(s.dirs, c.pid)
			continue
		}
		m := resultRE.FindStringSubmatch(c.text)
		if m == nil {
			continue
		}
		args, result := m[1], m[2]
		switch c.name {
		case "execve", "execveat":
			if result != "0" {
				continue
			}
			_, argv, err := ParseExecArgs(ApplyReplacements(s.repls, args))
			if errors.Is(err, ErrArgvOmitted) {
				s.reporter.Report(diag.Error(diag.CodeStraceArgvOmitted, err,
					"pid %d: exec arguments were not printed, record skipped", c.pid))
				continue
			}
			if err != nil {
				return out, err
			}
			if len(argv) == 0 {
				continue
			}
			dir := s.Dir(c.pid)
			out = append(out, Target{Args: argv, Dir: dir, RawDir: dir})
		case "clone", "clone3", "fork", "vfork":
			child, err := strconv.Atoi(result)
			if err != nil || child <= 0 {
				continue
			}
			s.dirs[child] = s.Dir(c.pid)
		case "chdir":
			if result != "0" {
				continue
			}
			p, err := firstString(args)
			if err != nil {
				return out, err
			}
			dir := dirstack.Resolve(s.Dir(c.pid), p, dirstack.POSIX)
			s.dirs[c.pid] = dir
			s.logger.Debug("chdir", "pid", c.pid, "dir", dir)
		}
	}
	return out, nil
}
