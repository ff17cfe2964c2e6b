// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import "io"

// Executor runs a command line at the far end of an established transport.
// Closing an Executor tears down its complete transport, deepest layer first.
type Executor interface {
	// Execute starts the command line and returns the running process.
	Execute(cmdline string) (Process, error)
	// Close tears down the transport.
	Close() error
}

// Process is a running remote command, such as a remote capture tool.
type Process interface {
	// Stdout returns the process' standard output stream.
	Stdout() io.Reader
	// Stderr returns the tail of what the process wrote to its standard error
	// stream so far.
	Stderr() string
	// Interrupt politely asks the process to terminate.
	Interrupt() error
	// Kill forcefully terminates the process, or at least our connection to
	// it.
	Kill() error
	// Wait waits for the process to terminate. It returns nil for a zero exit
	// status, an [*ExitError] for a nonzero status, and other errors when the
	// exit status got lost. Wait can be called multiple times.
	Wait() error
}
