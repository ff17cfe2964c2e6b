// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/siemens/kcap"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Identity names a set of SSH credentials. Secrets are never stored in the
// configuration itself; instead, they are taken from the named environment
// variables.
type Identity struct {
	User          string `yaml:"user,omitempty"`
	KeyFile       string `yaml:"key-file,omitempty"`
	PassphraseEnv string `yaml:"passphrase-env,omitempty"`
	PasswordEnv   string `yaml:"password-env,omitempty"`
	Agent         bool   `yaml:"agent,omitempty"`
}

// Jump is a named jump host.
type Jump struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user,omitempty"`
	Identity string `yaml:"identity,omitempty"`
}

// Config is a kcap configuration profile.
type Config struct {
	// Defaults maps long flag names to the values to use when the flag hasn't
	// been set on the command line.
	Defaults   map[string]string   `yaml:"defaults,omitempty"`
	Identities map[string]Identity `yaml:"identities,omitempty"`
	Jumps      map[string]Jump     `yaml:"jumps,omitempty"`
}

// DefaultPath returns the default configuration file location,
// $XDG_CONFIG_HOME/kcap/config.yaml or its platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kcap", "config.yaml")
}

// Load reads the configuration from the named file. A missing file results
// in an empty configuration, unless mustExist is set.
func Load(name string, mustExist bool) (*Config, error) {
	if name == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !mustExist {
			log.Debugf("no configuration file %s", name)
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read configuration: %w", err)
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration file %s: %w", name, err)
	}
	log.Debugf("loaded configuration from %s", name)
	return c, nil
}

// Parse decodes and checks a YAML configuration.
func Parse(r io.Reader) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for name, jump := range c.Jumps {
		if jump.Host == "" {
			return nil, fmt.Errorf("jump host %q without host", name)
		}
		if jump.Port < 0 || jump.Port > 65535 {
			return nil, fmt.Errorf("jump host %q with invalid port %d", name, jump.Port)
		}
		if jump.Identity != "" {
			if _, ok := c.Identities[jump.Identity]; !ok {
				return nil, fmt.Errorf("jump host %q uses unknown identity %q", name, jump.Identity)
			}
		}
	}
	return c, nil
}

// Auth returns the user name and credentials of the named identity, taking
// secrets from the environment.
func (c *Config) Auth(identity string) (string, kcap.Auth, error) {
	id, ok := c.Identities[identity]
	if !ok {
		return "", kcap.Auth{}, fmt.Errorf("unknown identity %q", identity)
	}
	auth := kcap.Auth{KeyFile: expandHome(id.KeyFile), Agent: id.Agent}
	var err error
	if auth.Password, err = secret(id.PasswordEnv); err != nil {
		return "", kcap.Auth{}, fmt.Errorf("identity %q: %w", identity, err)
	}
	if auth.Passphrase, err = secret(id.PassphraseEnv); err != nil {
		return "", kcap.Auth{}, fmt.Errorf("identity %q: %w", identity, err)
	}
	return id.User, auth, nil
}

// secret returns the value of the named environment variable, if any.
func secret(env string) (string, error) {
	if env == "" {
		return "", nil
	}
	value, ok := os.LookupEnv(env)
	if !ok {
		return "", fmt.Errorf("environment variable %s not set", env)
	}
	return value, nil
}

// expandHome expands a leading "~/" to the user's home directory.
func expandHome(name string) string {
	if !strings.HasPrefix(name, "~/") {
		return name
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, name[2:])
}

// JumpEndpoint returns the endpoint of the named jump host, if configured.
func (c *Config) JumpEndpoint(name string) (kcap.Endpoint, bool, error) {
	jump, ok := c.Jumps[name]
	if !ok {
		return kcap.Endpoint{}, false, nil
	}
	ep := kcap.Endpoint{Host: jump.Host, Port: jump.Port, User: jump.User}
	if jump.Identity != "" {
		user, auth, err := c.Auth(jump.Identity)
		if err != nil {
			return kcap.Endpoint{}, true, fmt.Errorf("jump host %q: %w", name, err)
		}
		if ep.User == "" {
			ep.User = user
		}
		ep.Auth = auth
	}
	return ep, true, nil
}

// ApplyDefaults sets the flags that haven't been set on the command line to
// their configured default values. Flags are left marked as unchanged, so
// later checks still see them as not given by the user. Configured defaults
// for flags not in the flag set are ignored, as they might belong to other
// commands.
func (c *Config) ApplyDefaults(flags *pflag.FlagSet) error {
	names := make([]string, 0, len(c.Defaults))
	for name := range c.Defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil || flag.Changed {
			continue
		}
		if err := flag.Value.Set(c.Defaults[name]); err != nil {
			return fmt.Errorf("invalid configured default for --%s: %w", name, err)
		}
		log.Debugf("--%s defaults to %q from configuration", name, c.Defaults[name])
	}
	return nil
}
