// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Implements the capture outputs: local files, passthrough streams, and
// outbound websocket streams.

package kcap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/siemens/kcap/websock"
	log "github.com/sirupsen/logrus"
)

// OutputSink receives the captured container octets. Writes are never issued
// concurrently.
type OutputSink interface {
	io.Writer
	// Close flushes and closes the sink; for borrowed streams it only signals
	// the end of the capture data.
	Close() error
	// String names the sink for diagnostics.
	String() string
}

// Stdout is the sink destination name for passing the capture through to the
// standard output stream.
const Stdout = "-"

// ErrSinkClosed is returned when writing to an already closed sink.
var ErrSinkClosed = errors.New("capture output already closed")

// DefaultFilename returns the default capture file name for the specified
// point in time and container format.
func DefaultFilename(t time.Time, format Format) string {
	return "capture-" + t.UTC().Format("20060102T150405Z") + format.Ext()
}

// OpenSink opens the capture output named dest: "-" passes the capture
// through to stdout, "ws://..." and "wss://..." stream to a websocket
// service, an empty dest creates a file with a timestamped default name, and
// anything else creates (or truncates) the named file.
func OpenSink(dest string, format Format, stdout io.Writer) (OutputSink, error) {
	switch {
	case dest == Stdout:
		return NewPassthroughSink(stdout, "stdout"), nil
	case strings.HasPrefix(dest, "ws://"), strings.HasPrefix(dest, "wss://"):
		ws, err := websock.Dial(dest, &websock.Options{Timeout: DefaultConnectTimeout})
		if err != nil {
			return nil, &SinkError{Op: "connect", Sink: dest, Err: err}
		}
		return ws, nil
	case dest == "":
		dest = DefaultFilename(time.Now(), format)
	}
	return CreateFileSink(dest)
}

// FileSink writes the capture into an exclusively owned local file.
type FileSink struct {
	f    *os.File
	name string
}

// CreateFileSink creates the named capture file, truncating any existing
// file.
func CreateFileSink(name string) (*FileSink, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return nil, &SinkError{Op: "create", Sink: name, Err: err}
	}
	log.Debugf("created packet capture file %q", name)
	return &FileSink{f: f, name: name}, nil
}

// Write appends to the capture file, without any additional buffering.
func (s *FileSink) Write(b []byte) (int, error) {
	return s.f.Write(b)
}

// Close syncs the capture file to stable storage and closes it.
func (s *FileSink) Close() error {
	syncErr := s.f.Sync()
	if err := s.f.Close(); err != nil {
		return err
	}
	return syncErr
}

// Name returns the capture file name.
func (s *FileSink) Name() string { return s.name }

func (s *FileSink) String() string { return "file " + s.name }

// PassthroughSink forwards the capture into a stream owned by someone else,
// such as stdout piped into Wireshark.
type PassthroughSink struct {
	w      io.Writer
	name   string
	m      sync.Mutex
	closed bool
}

// NewPassthroughSink returns a sink forwarding to the borrowed writer w.
func NewPassthroughSink(w io.Writer, name string) *PassthroughSink {
	return &PassthroughSink{w: w, name: name}
}

// Write forwards b to the underlying stream.
func (s *PassthroughSink) Write(b []byte) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.w.Write(b)
}

// Close flushes the underlying stream if it supports flushing and then marks
// the end of the capture data; it never closes the underlying stream.
func (s *PassthroughSink) Close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *PassthroughSink) String() string { return fmt.Sprintf("stream %s", s.name) }
