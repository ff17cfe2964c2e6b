// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Declares capture targets, the SSH endpoints to reach them, and their
// credentials.

package kcap

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Auth carries the credentials for authenticating to a single SSH endpoint.
// Credentials are passed explicitly into connecting and are never stored
// process-wide; Auth deliberately never renders its secrets.
type Auth struct {
	// Password for password and keyboard-interactive authentication.
	Password string
	// KeyFile is the path to a private key file.
	KeyFile string
	// Passphrase optionally decrypts KeyFile.
	Passphrase string
	// Agent enables public key authentication via the ssh-agent reachable at
	// SSH_AUTH_SOCK.
	Agent bool
}

// String returns the enabled authentication methods, without any secrets.
func (a Auth) String() string {
	methods := []string{}
	if a.KeyFile != "" {
		methods = append(methods, "publickey:"+a.KeyFile)
	}
	if a.Agent {
		methods = append(methods, "agent")
	}
	if a.Password != "" {
		methods = append(methods, "password")
	}
	if len(methods) == 0 {
		return "none"
	}
	return strings.Join(methods, ",")
}

// GoString keeps %#v from dumping credentials.
func (a Auth) GoString() string { return "kcap.Auth{" + a.String() + "}" }

// Format keeps %v and %+v from dumping credentials.
func (a Auth) Format(f fmt.State, verb rune) { fmt.Fprint(f, a.String()) }

// IsZero returns true if no authentication method has been configured.
func (a Auth) IsZero() bool {
	return a.Password == "" && a.KeyFile == "" && !a.Agent
}

// Endpoint is an SSH server, either a jump host or a capture node.
type Endpoint struct {
	Host string
	Port int
	User string
	Auth Auth
}

// Address returns the host:port dial address of this endpoint.
func (e Endpoint) Address() string {
	port := e.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// String returns the [user@]host:port form of this endpoint.
func (e Endpoint) String() string {
	if e.User == "" {
		return e.Address()
	}
	return e.User + "@" + e.Address()
}

// JumpPath is the ordered list of jump hosts to pass through before reaching a
// capture node: hop[0] gets reached first, and each following hop is reached
// through the previous one.
type JumpPath []Endpoint

// CaptureTarget is either a [NodeTarget] or a [PodTarget].
type CaptureTarget interface {
	isCaptureTarget()
	String() string
}

// NodeTarget captures on a node (host) reachable via SSH.
type NodeTarget struct {
	Endpoint
}

func (NodeTarget) isCaptureTarget() {}

// PodTarget captures inside the network namespace of a running pod,
// optionally selecting a specific container to exec into.
type PodTarget struct {
	Namespace string
	Pod       string
	Container string
}

func (PodTarget) isCaptureTarget() {}

// String returns namespace/pod[:container].
func (t PodTarget) String() string {
	s := t.Namespace + "/" + t.Pod
	if t.Container != "" {
		s += ":" + t.Container
	}
	return s
}

// ParseEndpoint parses the "[user@]host[:port]" endpoint notation, where
// IPv6 addresses need to be in brackets when a port is given. Missing parts
// are taken from defaultUser and defaultPort.
func ParseEndpoint(s string, defaultUser string, defaultPort int) (Endpoint, error) {
	ep := Endpoint{User: defaultUser, Port: defaultPort}
	hostport := strings.TrimSpace(s)
	if at := strings.LastIndex(hostport, "@"); at >= 0 {
		ep.User = hostport[:at]
		hostport = hostport[at+1:]
		if ep.User == "" {
			return Endpoint{}, fmt.Errorf("empty user name in %q", s)
		}
	}
	switch {
	case strings.HasPrefix(hostport, "["), strings.Count(hostport, ":") == 1:
		host, port, err := net.SplitHostPort(hostport)
		if err != nil {
			// "[::1]" without a port.
			if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
				ep.Host = hostport[1 : len(hostport)-1]
				break
			}
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port in endpoint %q", s)
		}
		ep.Host, ep.Port = host, p
	default:
		// Plain host name or an unbracketed IPv6 address.
		ep.Host = hostport
	}
	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("missing host in endpoint %q", s)
	}
	return ep, nil
}
