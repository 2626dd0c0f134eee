// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from the --config file when given, otherwise from
// config.cue in the platform config directory ($XDG_CONFIG_HOME/buildlog on
// Linux), otherwise from ./config.cue. Files are validated against the
// embedded CUE schema (config_schema.cue) before being merged over the
// defaults, and BUILDLOG_* environment variables override both.
package config
