// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Implements the capture session: running the remote capture command over an
// established transport, relaying the capture stream into the output sink,
// and terminating the capture in an orderly manner.

package kcap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"
	log "github.com/sirupsen/logrus"
)

// relayBufferSize is the maximum number of octets read from the remote
// capture stream in one go; smaller chunks are forwarded as they arrive.
const relayBufferSize = 64 * 1024

// State of a capture session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateCompleting
	StateCancelling
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	"idle", "starting", "streaming", "completing", "cancelling", "failed", "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Outcome of a capture session.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Reason why a capture session ended.
type Reason string

const (
	ReasonDurationElapsed Reason = "capture duration elapsed"
	ReasonRemoteExited    Reason = "remote capture ended"
	ReasonCancelled       Reason = "capture cancelled"
	ReasonFailed          Reason = "capture failed"
)

// SessionReport summarizes a finished capture session.
type SessionReport struct {
	ID      string
	Outcome Outcome
	Reason  Reason
	Bytes   uint64 // octets written to the sink
	Chunks  uint64 // number of sink writes
	Started time.Time
	Elapsed time.Duration
	Sink    string
}

// SessionOptions control a capture session's timing and checks.
type SessionOptions struct {
	// Duration bounds the capture; zero captures until cancelled or the remote
	// capture ends on its own.
	Duration time.Duration
	// StartupGrace after which the session is considered streaming, even
	// without having received any capture data yet.
	StartupGrace time.Duration
	// StopTimeout limits waiting for the remote capture tool to terminate
	// after having been asked to stop, before killing it.
	StopTimeout time.Duration
	// Format expected from the remote capture tool; if set, the session fails
	// with a [FormatError] when the stream turns out to be of another format.
	Format Format
	// Observer, if non-nil, gets called on each state transition.
	Observer func(from, to State)
}

// ErrSessionUsed is returned when trying to run a session a second time.
var ErrSessionUsed = errors.New("capture session has already been run")

// Session drives a single remote capture. It exclusively owns the executor
// (and thus the complete transport chain) as well as the output sink; when
// the session ends, for whatever reason, both are closed. A Session cannot be
// reused.
type Session struct {
	id      string
	exec    Executor
	cmdline string
	sink    OutputSink
	opts    SessionOptions
	log     *log.Entry

	state atomic.Int32
	used  atomic.Bool

	// Serializes sink writes from the relay with closing the sink from the
	// control loop, so that the sink only ever sees complete chunks. It is a
	// channel so that the control loop can give up waiting on a stalled
	// write.
	sinkLock   chan struct{}
	sinkClosed atomic.Bool
	written    meter
}

// meter counts the octets and writes actually reaching the sink.
type meter struct {
	w      io.Writer
	bytes  atomic.Uint64
	chunks atomic.Uint64
}

func (m *meter) Write(b []byte) (int, error) {
	n, err := m.w.Write(b)
	if n > 0 {
		m.bytes.Add(uint64(n))
		m.chunks.Add(1)
	}
	return n, err
}

// NewSession returns a new capture session for running cmdline via the
// executor and relaying the capture into the sink.
func NewSession(exec Executor, cmdline string, sink OutputSink, opts SessionOptions) *Session {
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = DefaultStartupGrace
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	id := shortuuid.New()
	s := &Session{
		id:       id,
		exec:     exec,
		cmdline:  cmdline,
		sink:     sink,
		opts:     opts,
		log:      log.WithField("session", id),
		sinkLock: make(chan struct{}, 1),
	}
	s.written.w = sink
	return s
}

// ID returns the session's (short) unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.log.Debugf("capture session %s -> %s", from, to)
	if s.opts.Observer != nil {
		s.opts.Observer(from, to)
	}
}

// Run executes the remote capture command and relays its output into the
// sink until the capture duration elapses, the remote capture ends, or ctx
// gets cancelled. Cancellation is a regular outcome and not an error. Errors
// are reported as [*ConnectError], [*RemoteExecutionError], [*SinkError], or
// [*FormatError].
func (s *Session) Run(ctx context.Context) (SessionReport, error) {
	started := time.Now()
	if !s.used.CompareAndSwap(false, true) {
		return SessionReport{ID: s.id, Outcome: OutcomeFailed, Reason: ReasonFailed}, ErrSessionUsed
	}
	s.setState(StateStarting)
	s.log.Debugf("running remote capture command: %s", s.cmdline)
	proc, err := s.exec.Execute(s.cmdline)
	if err != nil {
		var connErr *ConnectError
		if !errors.As(err, &connErr) {
			err = &RemoteExecutionError{ExitStatus: -1, Err: err}
		}
		return s.fail(started, nil, nil, err)
	}

	guard := newFormatGuard(s.opts.Format, &s.written)
	firstData := make(chan struct{})
	relayDone := make(chan error, 1)
	go s.relay(proc.Stdout(), guard, firstData, relayDone)

	grace := time.NewTimer(s.opts.StartupGrace)
	defer grace.Stop()
	var expired <-chan time.Time
	if s.opts.Duration > 0 {
		timer := time.NewTimer(s.opts.Duration)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-firstData:
			firstData = nil
			s.streaming("first capture data received")
		case <-grace.C:
			s.streaming("startup grace period elapsed")
		case <-expired:
			s.setState(StateCompleting)
			return s.stop(started, proc, guard, OutcomeCompleted, ReasonDurationElapsed)
		case <-ctx.Done():
			s.setState(StateCancelling)
			return s.stop(started, proc, guard, OutcomeCancelled, ReasonCancelled)
		case err := <-relayDone:
			return s.remoteEnded(started, proc, guard, err)
		}
	}
}

func (s *Session) streaming(why string) {
	if s.State() == StateStarting {
		s.log.Debugf("capture streaming: %s", why)
		s.setState(StateStreaming)
	}
}

// relay drains the remote capture stream, forwarding each chunk as it
// arrives. It keeps draining after the sink has been closed, so the remote
// side doesn't block while being stopped.
func (s *Session) relay(r io.Reader, w io.Writer, firstData chan<- struct{}, done chan<- error) {
	buf := make([]byte, relayBufferSize)
	first := true
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if first {
				first = false
				close(firstData)
			}
			if werr := s.forward(w, buf[:n]); werr != nil {
				done <- werr
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			done <- err
			return
		}
	}
}

// forward writes a single chunk to the sink, unless the sink has already
// been closed, in which case the chunk is discarded as a whole.
func (s *Session) forward(w io.Writer, b []byte) error {
	s.sinkLock <- struct{}{}
	defer func() { <-s.sinkLock }()
	if s.sinkClosed.Load() {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		if s.sinkClosed.Load() {
			// forcibly closed while stalled in this write.
			return nil
		}
		var fmtErr *FormatError
		if errors.As(err, &fmtErr) {
			return fmtErr
		}
		return &SinkError{Op: "write", Sink: s.sink.String(), Err: err}
	}
	return nil
}

// errSinkStalled reports a sink that didn't accept a write within the stop
// timeout.
var errSinkStalled = errors.New("sink stalled")

// closeSink flushes any held back octets and closes the sink; afterwards,
// the relay discards whatever still arrives. When the relay is stuck in a
// sink write for longer than the stop timeout, the sink gets closed
// forcibly instead, so that stopping the remote capture isn't held up.
func (s *Session) closeSink(guard *formatGuard) error {
	select {
	case s.sinkLock <- struct{}{}:
		defer func() { <-s.sinkLock }()
	case <-time.After(s.opts.StopTimeout):
		return s.forceCloseSink()
	}
	if s.sinkClosed.Swap(true) {
		return nil
	}
	var flushErr error
	if guard != nil {
		flushErr = guard.Flush()
	}
	if err := s.sink.Close(); err != nil {
		return &SinkError{Op: "close", Sink: s.sink.String(), Err: err}
	}
	if flushErr != nil {
		return &SinkError{Op: "write", Sink: s.sink.String(), Err: flushErr}
	}
	return nil
}

// forceCloseSink closes a sink stalled in a write, without flushing; it
// doesn't wait on the close for longer than the stop timeout either.
func (s *Session) forceCloseSink() error {
	if s.sinkClosed.Swap(true) {
		return nil
	}
	s.log.Warnf("%s stalled for more than %s, forcibly closing it", s.sink, s.opts.StopTimeout)
	closed := make(chan error, 1)
	go func() { closed <- s.sink.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			return &SinkError{Op: "close", Sink: s.sink.String(), Err: err}
		}
	case <-time.After(s.opts.StopTimeout):
		return &SinkError{Op: "close", Sink: s.sink.String(), Err: errSinkStalled}
	}
	return &SinkError{Op: "write", Sink: s.sink.String(), Err: errSinkStalled}
}

// stop terminates a streaming capture in an orderly manner: first the sink
// gets closed, then the remote capture tool is asked to stop and, if it
// doesn't in time, killed. Finally the transport is torn down.
func (s *Session) stop(started time.Time, proc Process, guard *formatGuard, outcome Outcome, reason Reason) (SessionReport, error) {
	s.log.Debugf("stopping capture: %s", reason)
	sinkErr := s.closeSink(guard)
	s.stopRemote(proc)
	s.closeTransport()
	if sinkErr != nil {
		s.setState(StateFailed)
		s.setState(StateClosed)
		return s.report(started, OutcomeFailed, ReasonFailed), sinkErr
	}
	s.setState(StateClosed)
	return s.report(started, outcome, reason), nil
}

// remoteEnded handles the relay having finished, because the remote capture
// ended, the transport broke, or writing the sink failed.
func (s *Session) remoteEnded(started time.Time, proc Process, guard *formatGuard, relayErr error) (SessionReport, error) {
	if relayErr != nil {
		var (
			sinkErr *SinkError
			fmtErr  *FormatError
		)
		if !errors.As(relayErr, &sinkErr) && !errors.As(relayErr, &fmtErr) {
			relayErr = &ConnectError{Stage: StageStream, HopIndex: -1, Err: relayErr}
		}
		return s.fail(started, proc, guard, relayErr)
	}
	// The capture stream has ended, so the remote process should be
	// terminating by now, or have already terminated.
	err := waitTimeout(proc, s.opts.StopTimeout)
	switch {
	case err == nil:
		s.setState(StateCompleting)
		sinkErr := s.closeSink(guard)
		s.closeTransport()
		if sinkErr != nil {
			s.setState(StateFailed)
			s.setState(StateClosed)
			return s.report(started, OutcomeFailed, ReasonFailed), sinkErr
		}
		s.setState(StateClosed)
		return s.report(started, OutcomeCompleted, ReasonRemoteExited), nil
	case errors.Is(err, errWaitTimeout):
		err = &ConnectError{Stage: StageStream, HopIndex: -1,
			Err: errors.New("capture stream ended, but remote capture did not terminate")}
	default:
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			err = &RemoteExecutionError{ExitStatus: exitErr.Status, Stderr: proc.Stderr(), Err: exitErr}
		} else {
			err = &ConnectError{Stage: StageStream, HopIndex: -1, Err: err}
		}
	}
	return s.fail(started, proc, guard, err)
}

// fail tears down whatever has been acquired so far on a best-effort basis,
// only logging teardown problems so they don't mask the original cause.
func (s *Session) fail(started time.Time, proc Process, guard *formatGuard, cause error) (SessionReport, error) {
	s.setState(StateFailed)
	s.log.Errorf("capture failed: %s", cause.Error())
	if err := s.closeSink(guard); err != nil {
		s.log.Warnf("teardown: %s", err.Error())
	}
	if proc != nil {
		if err := proc.Kill(); err != nil {
			s.log.Debugf("teardown: cannot kill remote capture: %s", err.Error())
		}
	}
	s.closeTransport()
	s.setState(StateClosed)
	return s.report(started, OutcomeFailed, ReasonFailed), cause
}

// stopRemote asks the remote capture tool to terminate and waits for it,
// but only so long.
func (s *Session) stopRemote(proc Process) {
	if err := proc.Interrupt(); err != nil {
		s.log.Debugf("cannot interrupt remote capture: %s", err.Error())
	}
	err := waitTimeout(proc, s.opts.StopTimeout)
	if errors.Is(err, errWaitTimeout) {
		s.log.Warnf("remote capture did not stop within %s, killing it", s.opts.StopTimeout)
		if err := proc.Kill(); err != nil {
			s.log.Debugf("cannot kill remote capture: %s", err.Error())
		}
		return
	}
	if err != nil {
		s.log.Debugf("remote capture stopped: %s", err.Error())
	}
}

func (s *Session) closeTransport() {
	if err := s.exec.Close(); err != nil {
		s.log.Warnf("teardown: cannot close transport: %s", err.Error())
	}
}

func (s *Session) report(started time.Time, outcome Outcome, reason Reason) SessionReport {
	return SessionReport{
		ID:      s.id,
		Outcome: outcome,
		Reason:  reason,
		Bytes:   s.written.bytes.Load(),
		Chunks:  s.written.chunks.Load(),
		Started: started,
		Elapsed: time.Since(started),
		Sink:    s.sink.String(),
	}
}

var errWaitTimeout = errors.New("timeout waiting for remote process")

// waitTimeout waits for the process to terminate, giving up after d.
func waitTimeout(proc Process, d time.Duration) error {
	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()
	select {
	case err := <-exited:
		return err
	case <-time.After(d):
		return errWaitTimeout
	}
}
