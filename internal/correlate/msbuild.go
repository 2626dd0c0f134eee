// SPDX-License-Identifier: MPL-2.0

package correlate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"buildlog-cli/internal/diag"
	"buildlog-cli/internal/dirstack"
	"buildlog-cli/internal/ordered"
)

var (
	nodePrefixRE    = regexp.MustCompile(`^\s*(\d+)>(.*)$`)
	topProjectRE    = regexp.MustCompile(`^Project "([^"]*)" on node (\d+)`)
	nestedProjectRE = regexp.MustCompile(`^Project "([^"]*)" \((\d+)(?::\d+)?\) is building "([^"]*)" \((\d+)(?::\d+)?\) on node (\d+)`)
	artifactRE      = regexp.MustCompile(`^\S.* -> \S.*$`)
	bannerRE        = regexp.MustCompile(`^(?:Build started|Build succeeded|Build FAILED|Done Building Project|Time Elapsed|\d+ Warning\(s\)|\d+ Error\(s\)|Microsoft \(R\) Build Engine|MSBuild version|Copyright \(C\))`)
)

// MSBuild correlates multi-node MSBuild console output. Each `N>` prefix
// selects the directory of the project instance N; `Lib:` and `Link:` open a
// deferred block whose indented lines form one command. A deferred target
// keeps the directory it was opened in as Dir; RawDir is the directory
// current when it was flushed. Lines from a node other than the one that
// opened the block close it.
type MSBuild struct {
	initial      string
	current      string
	nodes        map[int]string
	registered   map[int]bool
	expectNodes  bool
	deferred     ordered.Buffer[Target]
	deferredNode int
	reporter     diag.Reporter
	logger       *log.Logger
}

// NewMSBuild creates an MSBuild correlator.
func NewMSBuild(opts Options) *MSBuild {
	m := &MSBuild{
		initial:  dirstack.Clean(opts.Dir, dirstack.Windows),
		reporter: diag.OrDiscard(opts.Reporter),
		logger:   loggerOrDiscard(opts.Logger),
	}
	m.reset()
	return m
}

func (m *MSBuild) reset() {
	m.current = m.initial
	m.nodes = map[int]string{1: m.initial}
	m.registered = map[int]bool{}
	m.expectNodes = true
	m.deferredNode = 0
	m.deferred.Close()
}

// Node returns the directory registered for id.
func (m *MSBuild) Node(id int) (string, bool) {
	dir, ok := m.nodes[id]
	return dir, ok
}

// Line implements Correlator.
func (m *MSBuild) Line(text string) ([]Target, error) {
	var out []Target
	text = strings.TrimRight(text, "\r")

	prefixID := 0
	if m.expectNodes {
		if match := nodePrefixRE.FindStringSubmatch(text); match != nil {
			prefixID, _ = strconv.Atoi(match[1])
			text = match[2]
			if dir, ok := m.nodes[prefixID]; ok {
				if dir != m.current {
					m.logger.Debug("switching node", "node", prefixID, "dir", dir)
				}
				m.current = dir
			} else {
				m.reporter.Report(diag.Error(diag.CodeMSBuildUnknownNode, nil,
					"node %d is used before any project was built on it", prefixID))
			}
			if prefixID != m.deferredNode {
				out = append(out, m.flush()...)
			}
		}
	}

	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		return out, nil
	case strings.Contains(trimmed, "one at a time"):
		m.expectNodes = false
		return out, nil
	case bannerRE.MatchString(trimmed):
		return out, nil
	}

	if match := topProjectRE.FindStringSubmatch(trimmed); match != nil {
		id := prefixID
		if id == 0 {
			id = 1
		}
		m.register(id, match[1])
		return out, nil
	}
	if match := nestedProjectRE.FindStringSubmatch(trimmed); match != nil {
		id, _ := strconv.Atoi(match[4])
		m.register(id, match[3])
		return out, nil
	}

	switch {
	case strings.EqualFold(trimmed, "Lib:"), strings.EqualFold(trimmed, "Link:"):
		out = append(out, m.flush()...)
		m.deferred.Push(Target{Dir: m.current}, false)
		m.deferredNode = prefixID
		return out, nil
	case artifactRE.MatchString(trimmed),
		strings.HasSuffix(trimmed, ":"),
		strings.HasPrefix(trimmed, "Creating library"):
		return append(out, m.flush()...), nil
	}

	if open := m.deferred.Last(); open != nil && !open.IsComplete() {
		t := open.Value()
		if t.Command == "" {
			t.Command = trimmed
		} else {
			t.Command += " " + trimmed
		}
		return out, nil
	}
	return append(out, Target{Command: trimmed, Dir: m.current, RawDir: m.current}), nil
}

// Finish implements Correlator.
func (m *MSBuild) Finish() ([]Target, error) {
	out := m.flush()
	m.reset()
	return out, nil
}

// flush completes the open deferred block and returns it when it holds a
// command.
func (m *MSBuild) flush() []Target {
	open := m.deferred.Last()
	if open == nil {
		return nil
	}
	open.Complete()
	var out []Target
	for _, t := range m.deferred.Drain() {
		if t.Command == "" {
			continue
		}
		t.RawDir = m.current
		out = append(out, t)
	}
	return out
}

// register maps project instance id to the directory of project. Building
// an instance again with other targets (GetTargetPath and the like) names
// the same project and is not an error.
func (m *MSBuild) register(id int, project string) {
	dir, ok := projectDir(m.current, project)
	if !ok {
		m.reporter.Report(diag.Error(diag.CodeMSBuildBadProject, nil,
			"cannot resolve a directory for project %q", project))
		return
	}
	if m.registered[id] {
		if prev := m.nodes[id]; !strings.EqualFold(prev, dir) {
			m.reporter.Report(diag.Error(diag.CodeMSBuildDuplicateNode, nil,
				"project instance %d registered twice (first in %s, then %s)", id, prev, dir))
		} else {
			m.logger.Debug("project re-entered", "node", id, "dir", dir)
		}
		return
	}
	m.nodes[id] = dir
	m.registered[id] = true
	m.logger.Debug("registered project", "node", id, "dir", dir)
}

// projectDir resolves the directory of a project file path.
func projectDir(base, project string) (string, bool) {
	p := strings.TrimSpace(project)
	if p == "" || strings.ContainsAny(p, `<>|?*`) {
		return "", false
	}
	p = strings.ReplaceAll(p, "/", `\`)
	i := strings.LastIndex(p, `\`)
	if i == len(p)-1 {
		return "", false
	}
	dir := ""
	if i >= 0 {
		dir = p[:i+1]
	}
	return dirstack.Resolve(base, dir, dirstack.Windows), true
}
