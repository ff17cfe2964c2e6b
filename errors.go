// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Declares the error types reported by target resolution, transport setup,
// and capture sessions, as well as their mapping onto process exit codes.

package kcap

import (
	"errors"
	"fmt"
)

// InvalidTargetError reports conflicting or missing capture target parameters.
type InvalidTargetError struct {
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return "invalid capture target: " + e.Reason
}

// Stage identifies at which step establishing or using a transport failed.
type Stage string

const (
	StageConnect      Stage = "connect"      // network connect or tunnel dial
	StageAuthenticate Stage = "authenticate" // SSH user authentication
	StageExec         Stage = "exec"         // starting the exec facility
	StageStream       Stage = "stream"       // transport broke while streaming
)

// ConnectError reports a failure to connect to or through a specific hop of a
// transport chain. HopIndex is the zero-based index of the hop in the chain,
// where the final capture host comes after all jump hosts; it is negative when
// the failure isn't specific to a single hop.
type ConnectError struct {
	Stage    Stage
	HopIndex int
	Host     string
	Err      error
}

func (e *ConnectError) Error() string {
	where := e.Host
	if e.HopIndex >= 0 {
		where = fmt.Sprintf("hop %d (%s)", e.HopIndex, e.Host)
	}
	if where == "" {
		return fmt.Sprintf("%s failed: %s", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed at %s: %s", e.Stage, where, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ExitError is returned by a remote [Process] that terminated with a nonzero
// exit status or because of a signal.
type ExitError struct {
	Status int
	Signal string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("remote process terminated by signal %s (status %d)", e.Signal, e.Status)
	}
	return fmt.Sprintf("remote process exited with status %d", e.Status)
}

// RemoteExecutionError reports that the remote capture command could not be
// started or failed, such as because the capture tool is missing, permissions
// were denied, or the capture filter expression is malformed. Stderr carries
// the tail of the remote tool's error output verbatim.
type RemoteExecutionError struct {
	ExitStatus int
	Stderr     string
	Err        error
}

func (e *RemoteExecutionError) Error() string {
	msg := fmt.Sprintf("remote capture failed with exit status %d", e.ExitStatus)
	if e.ExitStatus < 0 && e.Err != nil {
		msg = "remote capture failed: " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *RemoteExecutionError) Unwrap() error { return e.Err }

// SinkError reports a failure to create, write, or close the capture output.
type SinkError struct {
	Op   string
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("cannot %s capture output %s: %s", e.Op, e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// FormatError reports that the remote capture tool cannot deliver the
// requested packet capture container format.
type FormatError struct {
	Want Format
	Got  Format
	Tool Tool
}

func (e *FormatError) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("capture tool %s cannot write %s containers", e.Tool, e.Want)
	}
	return fmt.Sprintf("remote capture stream is %s, but %s was requested", e.Got, e.Want)
}

// Process exit codes for the CLI.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitInvalidTarget = 2
	ExitConnect       = 3
	ExitRemote        = 4
	ExitLocalIO       = 5
	ExitIncompatible  = 6
)

// ExitCode maps an error returned from resolving, connecting, or running a
// capture session onto a process exit code. A nil error means success.
func ExitCode(err error) int {
	var (
		targetErr *InvalidTargetError
		connErr   *ConnectError
		remoteErr *RemoteExecutionError
		sinkErr   *SinkError
		fmtErr    *FormatError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &targetErr):
		return ExitInvalidTarget
	case errors.As(err, &fmtErr):
		return ExitIncompatible
	case errors.As(err, &sinkErr):
		return ExitLocalIO
	case errors.As(err, &connErr):
		return ExitConnect
	case errors.As(err, &remoteErr):
		return ExitRemote
	}
	return ExitFailure
}
