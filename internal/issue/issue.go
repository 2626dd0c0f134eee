// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalogue entry.
type Id int

const (
	LogNotFoundId Id = iota + 1
	LogParseFailedId
	SubstitutionFailedId
	ConfigLoadFailedId
	InvalidFlagId
	OutputWriteFailedId
)

type (
	MarkdownMsg string

	HttpLink string

	// Issue is a catalogue entry: markdown help for one class of failure.
	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink
		extLinks []HttpLink // external links that might be useful for the user
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the entry with the glamour style at stylePath ("dark",
// "light", "notty" or a JSON style file).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range slices.Concat(i.docLinks, i.extLinks) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	logNotFoundIssue = &Issue{
		id: LogNotFoundId,
		mdMsg: `
# Build log not found!

None of the paths or patterns given to ` + "`buildlog parse`" + ` matched a readable file.

## Things you can try:
- Check the path for typos, relative to the current directory
- Quote glob patterns so the shell does not expand them first:
~~~
$ buildlog parse 'logs/**/*.log'
~~~

- Read the log from standard input:
~~~
$ make -w 2>&1 | buildlog parse -
~~~`,
	}

	logParseFailedIssue = &Issue{
		id: LogParseFailedId,
		mdMsg: `
# Failed to parse a build log!

A command line in the log could not be tokenized, so the log was abandoned.
The error above names the file, the line number and the offending text.

## Common causes:
- The wrong dialect: Windows command-processor logs use ` + "`^`" + ` as the
  escape character and only double quotes
- A command that was truncated when the log was captured
- Grouping that nests subshells, which is not supported

## Things you can try:
- Select the dialect explicitly:
~~~
$ buildlog parse --dialect cmd msbuild.log
$ buildlog parse --dialect shell-on-cmd ninja.log
~~~

- Select the log format explicitly if auto-detection guessed wrong:
~~~
$ buildlog parse --format ninja build.log
~~~

- Rewrite problematic text before parsing:
~~~
$ buildlog parse --replace 'PATTERN=REPLACEMENT' build.log
~~~`,
	}

	substitutionFailedIssue = &Issue{
		id: SubstitutionFailedId,
		mdMsg: `
# Sub-command substitution failed!

A ` + "`$(...)`" + ` or backtick group in a recovered command could not be run.
Substitution runs commands in the directory recorded for them, which may not
exist on this machine.

## Things you can try:
- Run without ` + "`--substitute`" + ` to keep the groups as literal text
- Re-run on the machine or container that produced the log
- Raise the timeout in your config:
~~~cue
substitution: {
	enabled: true
	timeout: "2m"
}
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Show where buildlog looks for configuration:
~~~
$ buildlog config path
~~~

- Regenerate a default file and compare:
~~~
$ buildlog config init
$ buildlog config dump
~~~

## Example configuration:
~~~cue
format: "auto"
dialect: "shell"
output: "json"
replacements: [
	{pattern: "/tmp/build-[0-9]+", replacement: "/tmp/build"},
]
~~~`,
	}

	invalidFlagIssue = &Issue{
		id: InvalidFlagId,
		mdMsg: `
# Invalid option value!

A flag or configuration value is not one of the accepted values.

## Accepted values:
- ` + "`--format`" + `: auto, make, ninja, msbuild, strace
- ` + "`--dialect`" + `: shell, cmd, shell-on-cmd
- ` + "`--output`" + `: json, jsonl, yaml, toml, text
- ` + "`--replace`" + ` and ` + "`--trace-replace`" + `: PATTERN=REPLACEMENT, where PATTERN
  is a regular expression and ` + "`\\=`" + ` escapes a literal equals sign`,
	}

	outputWriteFailedIssue = &Issue{
		id: OutputWriteFailedId,
		mdMsg: `
# Failed to write output!

The invocation records or file records could not be written.

## Things you can try:
- Check that the directory of ` + "`--files-out`" + ` exists and is writable
- Check for a full disk or a closed pipe`,
	}

	issues = map[Id]*Issue{
		logNotFoundIssue.Id():        logNotFoundIssue,
		logParseFailedIssue.Id():     logParseFailedIssue,
		substitutionFailedIssue.Id(): substitutionFailedIssue,
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		invalidFlagIssue.Id():        invalidFlagIssue,
		outputWriteFailedIssue.Id():  outputWriteFailedIssue,
	}
)

// Values returns every catalogue entry ordered by id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int { return int(a.id - b.id) })
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
