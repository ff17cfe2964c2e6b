// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/siemens/kcap"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethods returns the SSH authentication methods for the credentials,
// in the order public key file, agent, password. The returned closer releases
// the agent connection, if any, and must be called after the handshake.
func AuthMethods(auth kcap.Auth) ([]ssh.AuthMethod, func(), error) {
	methods := []ssh.AuthMethod{}
	closer := func() {}
	if auth.KeyFile != "" {
		signer, err := loadKeyFile(auth.KeyFile, auth.Passphrase)
		if err != nil {
			return nil, closer, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if auth.Agent {
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, closer, errors.New("ssh-agent requested, but SSH_AUTH_SOCK not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, closer, fmt.Errorf("cannot connect to ssh-agent: %w", err)
		}
		closer = func() { conn.Close() }
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}
	if auth.Password != "" {
		password := auth.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for idx := range answers {
					answers[idx] = password
				}
				return answers, nil
			}))
	}
	return methods, closer, nil
}

func loadKeyFile(name, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key file: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key file %s is encrypted, but no passphrase given", name)
		}
		return nil, fmt.Errorf("invalid private key file %s: %w", name, err)
	}
	return signer, nil
}

// hostKeyCallback returns the host key verification to use: either none at
// all when explicitly asked for, or checking against a known_hosts file.
func (c *SSHConnector) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		log.Warn("SSH host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	name := c.KnownHostsFile
	if name == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warnf("no home directory, not verifying SSH host keys: %s", err.Error())
			return ssh.InsecureIgnoreHostKey(), nil
		}
		name = filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			log.Warnf("%s not found, not verifying SSH host keys", name)
			return ssh.InsecureIgnoreHostKey(), nil
		}
	}
	cb, err := knownhosts.New(name)
	if err != nil {
		return nil, fmt.Errorf("cannot load known hosts: %w", err)
	}
	return cb, nil
}
