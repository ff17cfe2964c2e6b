/*
Package config loads the optional kcap configuration profile.

The profile is a YAML file, by default located at
$XDG_CONFIG_HOME/kcap/config.yaml:

	defaults:
	  ssh-user: ops
	  interface: eth0
	identities:
	  ops:
	    user: ops
	    key-file: ~/.ssh/id_ed25519
	    passphrase-env: KCAP_KEY_PASSPHRASE
	jumps:
	  bastion:
	    host: bastion.example.org
	    identity: ops

Profiles never contain secrets: identities only name the environment
variables holding passwords and key passphrases.
*/
package config
