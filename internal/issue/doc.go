// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the log or file involved and
// remediation hints. Catalogue entries hold longer markdown help for known
// failure classes and are rendered with glamour.
package issue
