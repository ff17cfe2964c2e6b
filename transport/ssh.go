// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/siemens/kcap"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Link is a single established SSH connection of a chain.
type Link interface {
	// Dial opens a tunnelled connection from the far end of this link.
	Dial(network, addr string) (net.Conn, error)
	// Start runs the command line in a new session on this link.
	Start(cmdline string) (kcap.Process, error)
	// Close closes this link, including all tunnels through it.
	Close() error
}

// Handshaker runs the SSH client handshake over an already established
// connection to addr, returning the resulting link.
type Handshaker func(conn net.Conn, addr string, config *ssh.ClientConfig) (Link, error)

// DialFunc opens the initial network connection to the first hop.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SSHConnector connects [kcap.ShellChain] transport plans.
type SSHConnector struct {
	kcap.CommonClientOptions
	// KnownHostsFile to verify host keys against; defaults to
	// ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey skips host key verification altogether.
	InsecureIgnoreHostKey bool

	dial      DialFunc
	handshake Handshaker
}

// Chain is an established SSH transport chain; its last link is connected to
// the capture node.
type Chain struct {
	links []Link
	hosts []string
}

var _ kcap.Executor = (*Chain)(nil)

// Connect establishes the SSH chain hop by hop. If any hop fails, the links
// established so far get closed again, deepest first, and a
// [*kcap.ConnectError] identifies the failing hop.
func (c *SSHConnector) Connect(ctx context.Context, plan kcap.ShellChain) (*Chain, error) {
	opts := c.CommonClientOptions.WithDefaults()
	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return nil, &kcap.ConnectError{Stage: kcap.StageConnect, HopIndex: -1, Err: err}
	}
	dial := c.dial
	if dial == nil {
		dial = (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext
	}
	handshake := c.handshake
	if handshake == nil {
		handshake = sshHandshake
	}

	chain := &Chain{}
	for idx, ep := range plan.Endpoints() {
		addr := ep.Address()
		log.Debugf("connecting to hop %d %s, auth %s", idx, ep, ep.Auth)
		link, stage, err := chain.connectHop(ctx, ep, dial, handshake, hostKeys, opts.ConnectTimeout)
		if err != nil {
			chain.Close()
			return nil, &kcap.ConnectError{Stage: stage, HopIndex: idx, Host: addr, Err: err}
		}
		chain.links = append(chain.links, link)
		chain.hosts = append(chain.hosts, addr)
	}
	log.Infof("connected to %s via %d jump host(s)", plan.Final, len(plan.Hops))
	return chain, nil
}

// connectHop connects to the next endpoint, through the chain's last link if
// there is one.
func (ch *Chain) connectHop(
	ctx context.Context,
	ep kcap.Endpoint,
	dial DialFunc,
	handshake Handshaker,
	hostKeys ssh.HostKeyCallback,
	timeout time.Duration,
) (Link, kcap.Stage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := ep.Address()
	var conn net.Conn
	var err error
	if len(ch.links) == 0 {
		conn, err = dial(ctx, "tcp", addr)
	} else {
		conn, err = dialThrough(ctx, ch.links[len(ch.links)-1], addr)
	}
	if err != nil {
		return nil, kcap.StageConnect, err
	}

	methods, closeAuth, err := AuthMethods(ep.Auth)
	if err != nil {
		conn.Close()
		return nil, kcap.StageAuthenticate, err
	}
	defer closeAuth()
	config := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	type result struct {
		link Link
		err  error
	}
	done := make(chan result, 1)
	go func() {
		link, err := handshake(conn, addr, config)
		done <- result{link: link, err: err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			conn.Close()
			return nil, handshakeStage(res.err), res.err
		}
		return res.link, "", nil
	case <-ctx.Done():
		// Unblocks the handshake, which then fails.
		conn.Close()
		if res := <-done; res.link != nil {
			res.link.Close()
		}
		return nil, kcap.StageConnect, ctx.Err()
	}
}

// dialThrough opens a tunnelled connection from the far end of link, giving
// up when ctx is done.
func dialThrough(ctx context.Context, link Link, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := link.Dial("tcp", addr)
		done <- result{conn: conn, err: err}
	}()
	select {
	case res := <-done:
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// handshakeStage tells authentication failures apart from other handshake
// failures; x/crypto/ssh doesn't offer a typed error for the former.
func handshakeStage(err error) kcap.Stage {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return kcap.StageAuthenticate
	}
	return kcap.StageConnect
}

// Execute runs the command line on the capture node.
func (ch *Chain) Execute(cmdline string) (kcap.Process, error) {
	if len(ch.links) == 0 {
		return nil, errors.New("transport chain not connected")
	}
	last := len(ch.links) - 1
	proc, err := ch.links[last].Start(cmdline)
	if err != nil {
		return nil, &kcap.ConnectError{Stage: kcap.StageExec, HopIndex: last, Host: ch.hosts[last], Err: err}
	}
	return proc, nil
}

// Close tears down the chain, deepest link first. It can be called multiple
// times.
func (ch *Chain) Close() error {
	var first error
	for idx := len(ch.links) - 1; idx >= 0; idx-- {
		if err := ch.links[idx].Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debugf("closing hop %d %s: %s", idx, ch.hosts[idx], err.Error())
			if first == nil {
				first = fmt.Errorf("closing hop %d %s: %w", idx, ch.hosts[idx], err)
			}
		}
	}
	ch.links = nil
	ch.hosts = nil
	return first
}

// Len returns the number of links in the chain.
func (ch *Chain) Len() int { return len(ch.links) }

// sshHandshake is the production Handshaker.
func sshHandshake(conn net.Conn, addr string, config *ssh.ClientConfig) (Link, error) {
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &sshLink{client: ssh.NewClient(c, chans, reqs)}, nil
}

// sshLink wraps an SSH client connection.
type sshLink struct {
	client *ssh.Client
}

func (l *sshLink) Dial(network, addr string) (net.Conn, error) {
	return l.client.Dial(network, addr)
}

func (l *sshLink) Start(cmdline string) (kcap.Process, error) {
	return startSession(l.client, cmdline)
}

func (l *sshLink) Close() error { return l.client.Close() }
