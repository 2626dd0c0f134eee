// SPDX-License-Identifier: MPL-2.0

// Package diag carries recovered pipeline errors as structured diagnostics.
// Unresolvable references and state inconsistencies never stop a parse; they
// are reported here and rendered by the CLI once the run finishes.
package diag
