// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Defines the options common to all transport types -- not that there are
// that many, but this way we make explicit which options apply to SSH chains
// as well as to the orchestrator's exec facility.

package kcap

import "time"

// CommonClientOptions defines options common to all transport types.
type CommonClientOptions struct {
	// ConnectTimeout limits establishing the transport. For SSH chains it
	// limits each hop separately, covering the TCP connect (or tunnel dial)
	// and the SSH handshake including authentication. For the exec facility
	// it limits auxiliary queries, such as looking up a pod's node.
	ConnectTimeout time.Duration
}

// WithDefaults returns the options with unset fields set to their defaults.
func (o CommonClientOptions) WithDefaults() CommonClientOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}
