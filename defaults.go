// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package kcap

import "time"

const (
	// DefaultConnectTimeout specifies the time limit for establishing each
	// link of a transport chain, including authentication.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultStartupGrace is the time after which a capture session considers
	// itself streaming even if the remote capture tool hasn't sent any octets
	// yet, such as when capturing from a silent network interface.
	DefaultStartupGrace = 2 * time.Second

	// DefaultStopTimeout limits waiting for the remote capture tool to
	// terminate after it has been asked to stop; afterwards, it gets killed.
	DefaultStopTimeout = 5 * time.Second

	// DefaultSSHPort is the well-known SSH service port.
	DefaultSSHPort = 22

	// DefaultInterface captures from all network interfaces.
	DefaultInterface = "any"

	// DefaultNamespace is used for pods given without a namespace.
	DefaultNamespace = "default"

	// DefaultKubectl is the name of the orchestrator exec facility.
	DefaultKubectl = "kubectl"
)
