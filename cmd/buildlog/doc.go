// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for buildlog.
//
// The root command wires configuration loading and logging; `parse` runs
// the extraction pipeline over one or more logs and `config` manages the
// configuration file.
package cmd
