// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package node

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/siemens/kcap/cli/command"
	"github.com/siemens/kcap/transport"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

// HostKeyGroup is the name of an annotation value for flags that should be
// mutually exclusive for controlling host key verification.
const HostKeyGroup = "hostkey"

var (
	// Node is the [user@]host[:port] of the capture node.
	Node string
	// SSHUser is the default user name for the node and the jump hosts.
	SSHUser string
	// SSHPort is the default SSH port of the node.
	SSHPort int
	// Identity names an identity from the configuration profile.
	Identity string
	// IdentityFile is a private key file.
	IdentityFile string
	// PassphraseEnv names the environment variable holding the passphrase of
	// the private key file.
	PassphraseEnv string
	// PasswordEnv names the environment variable holding the SSH password.
	PasswordEnv string
	// Agent enables using the ssh-agent.
	Agent bool
	// Jumps are the jump hosts, either names of configured jump hosts or
	// [user@]host[:port].
	Jumps []string
	// KnownHosts is the known_hosts file to verify host keys against.
	KnownHosts string
	// InsecureIgnoreHostKey skips host key verification.
	InsecureIgnoreHostKey bool
)

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		NodeSetupCLI, plugger.WithPlugin("node"))
	plugger.Group[cli.TargetParams]().Register(
		NodeTargetParams, plugger.WithPlugin("node"))
	plugger.Group[cli.Connect]().Register(
		ConnectNode, plugger.WithPlugin("node"))
	plugger.Group[cli.CommandExamples]().Register(
		func() map[string]string {
			return map[string]string{
				"plan": `# Show how to reach a node through two jump hosts.
kcap plan --node worker-1 --jump bastion --jump ops@10.0.0.1:2222 -o wide`,
				"capture": `# Capture HTTPS traffic on a node for a minute and open it in Wireshark.
kcap capture --node ops@worker-1 --protocol tcp --port 443 --duration 1m -w - | wireshark -k -i -

# Capture DNS traffic on a node behind a configured jump host into a pcapng file.
kcap capture --node worker-1 --jump bastion --port 53 --format pcapng -w dns.pcapng`,
			}
		},
		plugger.WithPlugin("node"), plugger.WithPlacement("<"))
}

// NodeSetupCLI registers the SSH-related CLI flags.
func NodeSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&Node, "node", "",
		"[user@]host[:port] of the node to capture on, reached via SSH")
	pf.StringVar(&SSHUser, "ssh-user", "",
		"SSH user name for the node and jump hosts, unless given with a host (defaults to the local user)")
	pf.IntVar(&SSHPort, "ssh-port", kcap.DefaultSSHPort,
		"SSH port of the node, unless given with the node")
	pf.StringVar(&Identity, "identity", "",
		"Name of an identity from the configuration profile to authenticate with")
	pf.StringVar(&IdentityFile, "identity-file", "",
		"Private key file to authenticate with")
	pf.StringVar(&PassphraseEnv, "identity-passphrase-env", "",
		"Name of the environment variable holding the passphrase of the private key file")
	pf.StringVar(&PasswordEnv, "ssh-password-env", "",
		"Name of the environment variable holding the SSH password")
	pf.BoolVar(&Agent, "ssh-agent", false,
		"Authenticate using the ssh-agent at $SSH_AUTH_SOCK")
	pf.StringArrayVar(&Jumps, "jump", nil,
		`Jump host to pass through on the way to the node; either the name of a
configured jump host or [user@]host[:port]. Can be specified multiple times,
in the order the jump hosts are to be passed.`)
	pf.StringVar(&KnownHosts, "known-hosts", "",
		"known_hosts file to verify host keys against (default ~/.ssh/known_hosts)")
	command.Annotate(pf, "known-hosts", command.MutualFlagGroupAnnotation, HostKeyGroup)
	pf.BoolVar(&InsecureIgnoreHostKey, "insecure-ignore-host-key", false,
		"Danger: skip verifying the host keys of the node and jump hosts")
	command.Annotate(pf, "insecure-ignore-host-key", command.MutualFlagGroupAnnotation, HostKeyGroup)
}

// NodeTargetParams fills in the node and jump hosts, if specified.
func NodeTargetParams(params *kcap.TargetParams) error {
	if Node == "" && len(Jumps) == 0 {
		return nil
	}
	user, auth, err := credentials()
	if err != nil {
		return err
	}
	if Node != "" {
		ep, err := kcap.ParseEndpoint(Node, user, SSHPort)
		if err != nil {
			return &kcap.InvalidTargetError{Reason: err.Error()}
		}
		ep.Auth = auth
		params.Node = ep
	}
	for _, jump := range Jumps {
		hop, err := jumpEndpoint(jump, user, auth)
		if err != nil {
			return err
		}
		params.Jumps = append(params.Jumps, hop)
	}
	return nil
}

// jumpEndpoint returns the endpoint of the named jump host from the
// configuration profile, or otherwise parses the jump host endpoint. Missing
// user names and credentials are taken from the node's.
func jumpEndpoint(jump string, user string, auth kcap.Auth) (kcap.Endpoint, error) {
	ep, ok, err := command.Profile().JumpEndpoint(jump)
	if err != nil {
		return kcap.Endpoint{}, err
	}
	if !ok {
		ep, err = kcap.ParseEndpoint(jump, user, kcap.DefaultSSHPort)
		if err != nil {
			return kcap.Endpoint{}, &kcap.InvalidTargetError{Reason: "jump host: " + err.Error()}
		}
	}
	if ep.User == "" {
		ep.User = user
	}
	if ep.Auth.IsZero() {
		ep.Auth = auth
	}
	return ep, nil
}

// credentials returns the default user name and credentials from the
// configured identity and the CLI flags, where flags take precedence. Without
// any credentials the ssh-agent gets used, if there is one.
func credentials() (string, kcap.Auth, error) {
	name, auth := SSHUser, kcap.Auth{KeyFile: IdentityFile, Agent: Agent}
	if Identity != "" {
		idUser, idAuth, err := command.Profile().Auth(Identity)
		if err != nil {
			return "", kcap.Auth{}, err
		}
		if name == "" {
			name = idUser
		}
		if auth.KeyFile == "" {
			auth.KeyFile, auth.Passphrase = idAuth.KeyFile, idAuth.Passphrase
		}
		auth.Agent = auth.Agent || idAuth.Agent
		auth.Password = idAuth.Password
	}
	var err error
	if PassphraseEnv != "" {
		if auth.Passphrase, err = fromEnv(PassphraseEnv); err != nil {
			return "", kcap.Auth{}, err
		}
	}
	if PasswordEnv != "" {
		if auth.Password, err = fromEnv(PasswordEnv); err != nil {
			return "", kcap.Auth{}, err
		}
	}
	if auth.IsZero() && os.Getenv("SSH_AUTH_SOCK") != "" {
		log.Debugf("no SSH credentials specified, using ssh-agent")
		auth.Agent = true
	}
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	return name, auth, nil
}

func fromEnv(name string) (string, error) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", name)
	}
	return value, nil
}

// ConnectNode connects to the node of a [kcap.ShellChain] plan, passing
// through the jump hosts.
func ConnectNode(ctx context.Context, plan kcap.TransportPlan) (kcap.Executor, error) {
	chain, ok := plan.(kcap.ShellChain)
	if !ok {
		return nil, nil
	}
	connector := &transport.SSHConnector{
		CommonClientOptions:   command.ClientOptions(),
		KnownHostsFile:        KnownHosts,
		InsecureIgnoreHostKey: InsecureIgnoreHostKey,
	}
	ch, err := connector.Connect(ctx, chain)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
