// SPDX-License-Identifier: MPL-2.0

// Package cmdline tokenizes command lines the way a shell or command
// processor would. One lexer serves all dialects; a Dialect selects the
// quoting, escaping and operator rules it runs with.
//
// Lex produces lexical units covering the whole input. Split reassembles
// them into the flat argument list the rest of the pipeline consumes.
package cmdline
