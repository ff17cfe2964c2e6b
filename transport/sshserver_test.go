// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// testServer is a minimal in-process SSH server: it accepts password
// authentication, runs "exec" requests by sending canned output, and serves
// tunnel requests by handing the tunnelled connection to the next server.
type testServer struct {
	config     *ssh.ServerConfig
	signer     ssh.Signer
	output     []byte
	stderr     string
	exitStatus uint32
	execs      chan string
	next       *testServer
}

func newTestServer(user, password string) *testServer {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	Expect(err).NotTo(HaveOccurred())
	signer, err := ssh.NewSignerFromKey(priv)
	Expect(err).NotTo(HaveOccurred())
	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pw) == password {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	config.AddHostKey(signer)
	return &testServer{
		config: config,
		signer: signer,
		execs:  make(chan string, 10),
	}
}

// listen serves this server on a loopback TCP port and returns a dial
// function that connects to it, whatever address is asked for.
func (s *testServer) listen() DialFunc {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(l.Close)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	return func(ctx context.Context, network, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, l.Addr().String())
	}
}

func (s *testServer) serve(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		switch nc.ChannelType() {
		case "session":
			ch, chreqs, err := nc.Accept()
			if err != nil {
				continue
			}
			go s.session(ch, chreqs)
		case "direct-tcpip":
			if s.next == nil {
				_ = nc.Reject(ssh.ConnectionFailed, "no route to host")
				continue
			}
			ch, chreqs, err := nc.Accept()
			if err != nil {
				continue
			}
			go ssh.DiscardRequests(chreqs)
			go s.next.serve(channelConn{Channel: ch})
		default:
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

func (s *testServer) session(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		_ = ssh.Unmarshal(req.Payload, &payload)
		_ = req.Reply(true, nil)
		s.execs <- payload.Command
		_, _ = ch.Write(s.output)
		_, _ = ch.Stderr().Write([]byte(s.stderr))
		_, _ = ch.SendRequest("exit-status", false,
			ssh.Marshal(struct{ Status uint32 }{s.exitStatus}))
		return
	}
}

// channelConn makes a tunnel channel usable as a server-side net.Conn.
type channelConn struct {
	ssh.Channel
}

func (channelConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (channelConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (channelConn) SetDeadline(_ time.Time) error      { return nil }
func (channelConn) SetReadDeadline(_ time.Time) error  { return nil }
func (channelConn) SetWriteDeadline(_ time.Time) error { return nil }
