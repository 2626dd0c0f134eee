// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"buildlog-cli/internal/diag"
)

var (
	diagHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorWarning)

	diagLocationStyle = lipgloss.NewStyle().
				Foreground(ColorHighlight)

	diagCodeStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// renderDiagnostics writes a styled summary of diags to w, ordered by the
// position of their source in inputs and then by line.
func renderDiagnostics(w io.Writer, diags []diag.Diagnostic, inputs []string) {
	if len(diags) == 0 {
		return
	}

	order := make(map[string]int, len(inputs))
	for i, in := range inputs {
		if _, ok := order[in]; !ok {
			order[in] = i
		}
	}
	sorted := slices.Clone(diags)
	slices.SortStableFunc(sorted, func(a, b diag.Diagnostic) int {
		return cmp.Or(cmp.Compare(order[a.Source], order[b.Source]), cmp.Compare(a.Line, b.Line))
	})

	var sb strings.Builder
	sb.WriteString(diagHeaderStyle.Render(fmt.Sprintf("%d diagnostic(s)", len(sorted))))
	sb.WriteString("\n")
	for _, d := range sorted {
		sev := WarningStyle.Render(string(d.Severity))
		if d.Severity == diag.SeverityError {
			sev = ErrorStyle.Render(string(d.Severity))
		}
		sb.WriteString("  ")
		if loc := d.Location(); loc != "" {
			sb.WriteString(diagLocationStyle.Render(loc) + ": ")
		}
		sb.WriteString(sev + " " + d.Message)
		if d.Cause != nil {
			sb.WriteString(": " + d.Cause.Error())
		}
		sb.WriteString(" " + diagCodeStyle.Render("["+d.Code+"]"))
		sb.WriteString("\n")
	}
	fmt.Fprint(w, sb.String())
}
