// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package websock

import (
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// GracefulCloseTimeout is the upper bound for waiting on the peer to
// acknowledge our close control message.
var GracefulCloseTimeout = 10 * time.Second

// WriteTimeout limits how long writing a single message may block on a peer
// not reading.
var WriteTimeout = 10 * time.Second

// ErrClosing is returned when writing to a websocket that is closing or
// already closed.
var ErrClosing = errors.New("websocket is closing")

// Options control how to connect to a websocket service.
type Options struct {
	// Timeout limits the websocket handshake phase.
	Timeout time.Duration
	// InsecureSkipVerify skips verifying the server certificate for wss://.
	InsecureSkipVerify bool
	// Header optionally carries additional HTTP request headers.
	Header http.Header
}

// Sink represents a client websocket for writing binary capture data, with
// graceful handling of the closing procedure.
type Sink struct {
	*websocket.Conn
	url     string
	Closing bool       // Are we in the process of gracefully closing?
	m       sync.Mutex // Synchronize access to this websocket's state.
	// Signals that the websocket is closed, by closing (sic!)
	// this channel.
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the websocket service at url and returns a Sink for
// streaming binary data to it.
func Dial(url string, opts *Options) (*Sink, error) {
	if opts == nil {
		opts = &Options{}
	}
	wsd := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.Timeout,
	}
	if opts.InsecureSkipVerify {
		wsd.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	log.Debugf("connecting to websocket capture sink %q, time limit %s", url, opts.Timeout)
	conn, resp, err := wsd.Dial(url, opts.Header)
	if err != nil {
		return nil, err
	}
	log.Debugf("websocket capture sink initial HTTP response: %s", resp.Status)
	return New(conn, url), nil
}

// New returns a websocket Sink that does graceful close handling, based on
// an already connected gorilla websocket.
func New(ws *websocket.Conn, url string) *Sink {
	s := &Sink{
		Conn:   ws,
		url:    url,
		closed: make(chan struct{}),
	}
	ws.SetCloseHandler(s.closeHandler)
	go s.readControl()
	return s
}

// Write sends b as a single binary websocket message.
func (s *Sink) Write(b []byte) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.Closing {
		return 0, ErrClosing
	}
	if err := s.Conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		return 0, err
	}
	if err := s.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// closeHandler gets called from within readControl when receiving the peer's
// close control message. If the peer (server) is closing first, we need to
// ack, and then are done with this connection either. Otherwise, this is the
// ack to the close we started.
func (s *Sink) closeHandler(code int, text string) error {
	s.m.Lock()
	closing := s.Closing
	s.Closing = true
	s.m.Unlock()
	if closing {
		log.Debug("server acknowledged websocket close")
		return nil
	}
	log.Debugf("server closes websocket (%d %q), acknowledging close", code, text)
	// WriteControl may be used concurrently with an ongoing Write.
	err := s.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "ciao"),
		time.Now().Add(time.Second))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// readControl keeps reading from the websocket so that control messages get
// processed; data messages from the peer are ignored. It returns as soon as
// the websocket is closed, be it gracefully or broken.
func (s *Sink) readControl() {
	for {
		_, _, err := s.Conn.ReadMessage()
		if err == nil {
			continue
		}
		if _, isClose := err.(*websocket.CloseError); !isClose {
			log.Debugf("websocket broken: %s", err.Error())
		}
		s.m.Lock()
		s.Closing = true
		s.m.Unlock()
		s.Conn.Close()
		s.markClosed()
		return
	}
}

func (s *Sink) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Close gracefully closes this client websocket and waits for the close to
// complete. The waiting is time limited, though, so a non-responsive
// websocket peer (server) won't block us here forever: instead, after a
// "graceful" timeout, we will close the underlaying transport connection in
// any case.
func (s *Sink) Close() error {
	var err error
	func() { // locked section
		s.m.Lock()
		defer s.m.Unlock()
		// We should not send a close control message when we're already
		// gracefully closing the connection; regardless of whether already
		// we or the peer (server) started the close.
		if !s.Closing {
			s.Closing = true
			log.Debug("initiating graceful websocket close")
			err = s.Conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of capture"),
				time.Now().Add(GracefulCloseTimeout))
		}
	}()
	log.Debug("waiting for graceful close to be finished...")
	select {
	case <-time.After(GracefulCloseTimeout):
		// Force the underlaying transport connection to close anyway in case
		// the peer (server) hangs, not proceeding in the graceful websocket
		// close.
		log.Debug("graceful websocket close timeout; forced closed")
		s.Conn.Close()
		s.markClosed()
	case <-s.closed:
	}
	log.Debug("websocket gracefully closed.")
	return err
}

// Done returns a channel that gets closed when the websocket has been closed.
func (s *Sink) Done() <-chan struct{} { return s.closed }

func (s *Sink) String() string { return "websocket " + s.url }
