// SPDX-License-Identifier: MPL-2.0

// Package statement splits a log line into the sequential commands it runs.
//
// A line is split on `&&`, `||`, `;` and `&`, with one level of `( ... )`
// grouping in shell dialects. Each command then loses its trailing I/O
// redirections and leading NAME=VALUE assignments. Directory changes (`cd`,
// `pushd`, `popd`) update a dirstack.Stack instead of producing a command.
package statement
