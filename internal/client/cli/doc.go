// Package cli is the authkeeper command-line client.
//
// Run executes one subcommand (register, login, me, refresh, logout, ping)
// or, with no arguments, starts a small REPL accepting the same commands.
// The session's tokens live in a local SQLite file, so consecutive
// invocations act as one signed-in user until logout.
package cli
