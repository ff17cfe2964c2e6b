// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// This statically typed data model describes capture targets and the
// transport plans to reach them, independent of how a target has been
// specified on the command line. It is used both for listing transport plans
// in JSON, YAML, and custom column formats, as well as for annotating pcapng
// capture streams with the capture target information.

package api

// Target types.
const (
	NodeTarget = "node"
	PodTarget  = "pod"
)

// Transport kinds.
const (
	TransportSSH  = "ssh"
	TransportExec = "exec"
)

// Target describes a capture target: either a node reached via SSH, possibly
// through jump hosts, or a pod reached via the orchestrator's exec facility.
type Target struct {
	// Name of the node, or "namespace/pod" for pods.
	Name string `json:"name" yaml:"name"`
	// Type of target: "node" or "pod".
	Type string `json:"type" yaml:"type"`
	// Namespace of a pod target; empty for nodes.
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	// Container to exec into; empty when using the pod's default container.
	Container string `json:"container,omitempty" yaml:"container,omitempty"`
	// Name of the node hosting the capture target. For pods this is only
	// known after asking the cluster and thus might be missing.
	NodeName string `json:"node-name,omitempty" yaml:"node-name,omitempty"`
	// Transport used: "ssh" or "exec".
	Transport string `json:"transport" yaml:"transport"`
	// The jump hosts passed through, in order, as [user@]host:port.
	Hops []string `json:"hops,omitempty" yaml:"hops,omitempty"`
}
