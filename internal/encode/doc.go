// SPDX-License-Identifier: MPL-2.0

// Package encode writes invocation records and synthesized file records in
// the supported output formats.
package encode
