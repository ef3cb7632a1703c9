// Package cli implements the classnow subcommands.
//
// Every command opens the app through an AppFunc, so the same code serves the
// binary and the tests. Output goes through Output: a table by default, JSON
// with --json.
package cli
