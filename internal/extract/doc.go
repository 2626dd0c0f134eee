// SPDX-License-Identifier: MPL-2.0

// Package extract drives one build log through the pipeline: a format
// correlator rebuilds the command stream, and each recovered command is
// substituted, split into statements, expanded and recorded.
//
// Recoverable problems are reported as diagnostics stamped with the log
// position. Grammar and external-effect failures abort the log with a
// *LineError.
package extract
