// SPDX-License-Identifier: MPL-2.0

package statement

import (
	"buildlog-cli/internal/cmdline"
	"buildlog-cli/pkg/invocation"
)

// stripRedirections removes trailing redirection clauses, rightmost first.
// Each clause is prepended as it is found, so the result is in left-to-right
// source order.
func stripRedirections(args []cmdline.Arg) ([]invocation.Redirection, []cmdline.Arg) {
	var redirs []invocation.Redirection
	for len(args) > 0 {
		last := args[len(args)-1]
		if last.Operator {
			r, selfContained, ok := parseRedirect(last.Value)
			if !ok || !selfContained {
				break
			}
			redirs = append([]invocation.Redirection{r}, redirs...)
			args = args[:len(args)-1]
			continue
		}
		if len(args) < 2 || !args[len(args)-2].Operator {
			break
		}
		r, selfContained, ok := parseRedirect(args[len(args)-2].Value)
		if !ok || selfContained {
			break
		}
		r.Dest = last.Value
		redirs = append([]invocation.Redirection{r}, redirs...)
		args = args[:len(args)-2]
	}
	return redirs, args
}

// parseRedirect decodes a redirection operator. selfContained is true for the
// `>&N` and `>&-` forms that carry their own destination.
func parseRedirect(op string) (r invocation.Redirection, selfContained, ok bool) {
	if len(op) > 1 && op[0] >= '0' && op[0] <= '9' {
		r.Source = op[:1]
		op = op[1:]
	}
	switch op {
	case ">":
		r.Op = invocation.RedirWrite
	case ">>":
		r.Op = invocation.RedirAppend
	case "<":
		r.Op = invocation.RedirRead
	case ">&":
		r.Op = invocation.RedirMerge
	case "&>", "&>>":
		// Both streams go to the file: a write or an append with source "&".
		if r.Source != "" {
			return r, false, false
		}
		r.Source = "&"
		r.Op = invocation.RedirWrite
		if op == "&>>" {
			r.Op = invocation.RedirAppend
		}
	default:
		if len(op) == 3 && op[:2] == ">&" {
			r.Op = invocation.RedirMerge
			r.Dest = op[2:]
			return r, true, true
		}
		return r, false, false
	}
	return r, false, true
}
