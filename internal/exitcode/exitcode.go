// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UsageError indicates bad arguments or an invalid configuration.
	UsageError = 1

	// RuntimeError indicates a failure while running the TUI or the server.
	RuntimeError = 2
)
