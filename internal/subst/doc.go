// SPDX-License-Identifier: MPL-2.0

// Package subst performs opt-in sub-command substitution on recovered command
// lines. Commands run in-process in the mvdan.cc/sh interpreter; nothing is
// executed unless a caller enables it.
package subst
