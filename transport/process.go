// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package transport

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/siemens/kcap"
	"golang.org/x/crypto/ssh"
)

// StderrTailSize is the maximum number of trailing stderr octets of a remote
// capture command kept for error reporting.
const StderrTailSize = 4096

// tailBuffer keeps only the last octets written to it.
type tailBuffer struct {
	m    sync.Mutex
	max  int
	tail []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.m.Lock()
	defer t.m.Unlock()
	n := len(b)
	if n >= t.max {
		t.tail = append(t.tail[:0], b[n-t.max:]...)
		return n, nil
	}
	if over := len(t.tail) + n - t.max; over > 0 {
		t.tail = append(t.tail[:0], t.tail[over:]...)
	}
	t.tail = append(t.tail, b...)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.m.Lock()
	defer t.m.Unlock()
	return string(t.tail)
}

// waiter turns a single blocking wait into one that can be waited for any
// number of times.
type waiter struct {
	done chan struct{}
	err  error
}

func newWaiter(wait func() error) *waiter {
	w := &waiter{done: make(chan struct{})}
	go func() {
		w.err = wait()
		close(w.done)
	}()
	return w
}

func (w *waiter) Wait() error {
	<-w.done
	return w.err
}

// sshProcess is a command running in an SSH exec session.
type sshProcess struct {
	session *ssh.Session
	stdout  io.Reader
	stderr  *tailBuffer
	waiter  *waiter
}

// startSession opens a new session on the client and starts the command
// line, without requesting a pseudo terminal.
func startSession(client *ssh.Client, cmdline string) (kcap.Process, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stderr := newTailBuffer(StderrTailSize)
	session.Stderr = stderr
	if err := session.Start(cmdline); err != nil {
		session.Close()
		return nil, err
	}
	p := &sshProcess{
		session: session,
		stdout:  stdout,
		stderr:  stderr,
	}
	p.waiter = newWaiter(func() error { return sshExitError(session.Wait()) })
	return p, nil
}

func (p *sshProcess) Stdout() io.Reader { return p.stdout }
func (p *sshProcess) Stderr() string    { return p.stderr.String() }

// Interrupt sends SIGINT to the remote command; many SSH servers ignore
// signal requests, so Kill is the fallback.
func (p *sshProcess) Interrupt() error { return p.session.Signal(ssh.SIGINT) }

// Kill closes the session channel, which the remote side sees as a hangup.
func (p *sshProcess) Kill() error {
	err := p.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (p *sshProcess) Wait() error { return p.waiter.Wait() }

// sshExitError maps SSH session exit information onto kcap errors.
func sshExitError(err error) error {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &kcap.ExitError{Status: exitErr.ExitStatus(), Signal: exitErr.Signal()}
	}
	return err
}

// cmdProcess is a local child process, such as kubectl exec.
type cmdProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *tailBuffer
	waiter *waiter
}

// startProcess starts the command with its stdout piped and its stderr
// tail-buffered. The stdout pipe is ours, so waiting for the process never
// closes it while the capture is still being drained. The grace period limits
// how long waiting continues to collect stderr after the process has
// terminated.
func startProcess(cmd *exec.Cmd, grace time.Duration) (kcap.Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderr := newTailBuffer(StderrTailSize)
	cmd.Stdout = pw
	cmd.Stderr = stderr
	cmd.WaitDelay = grace
	err = cmd.Start()
	pw.Close()
	if err != nil {
		pr.Close()
		return nil, err
	}
	p := &cmdProcess{
		cmd:    cmd,
		stdout: pr,
		stderr: stderr,
	}
	p.waiter = newWaiter(func() error { return cmdExitError(cmd.Wait()) })
	return p, nil
}

func (p *cmdProcess) Stdout() io.Reader { return p.stdout }
func (p *cmdProcess) Stderr() string    { return p.stderr.String() }

func (p *cmdProcess) Interrupt() error { return p.cmd.Process.Signal(os.Interrupt) }

// Kill terminates the process and stops draining its output.
func (p *cmdProcess) Kill() error {
	defer p.stdout.Close()
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *cmdProcess) Wait() error { return p.waiter.Wait() }

func cmdExitError(err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	status := &kcap.ExitError{Status: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
	}
	return status
}
