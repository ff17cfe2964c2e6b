// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package api

// Kinds of transport plan steps.
const (
	StepJump = "jump"
	StepNode = "node"
	StepExec = "exec"
)

// PlanStep is a single step of a transport plan, such as passing a jump host.
type PlanStep struct {
	// Zero-based position in the transport chain.
	Step int `json:"step" yaml:"step"`
	// Kind of step: "jump", "node", or "exec".
	Kind string `json:"kind" yaml:"kind"`
	// host:port of an SSH endpoint, or namespace/pod[:container].
	Address string `json:"address" yaml:"address"`
	// SSH user name, if any.
	User string `json:"user,omitempty" yaml:"user,omitempty"`
	// Authentication methods, never including any secrets.
	Auth string `json:"auth,omitempty" yaml:"auth,omitempty"`
	// Where the connection for this step originates from.
	Via string `json:"via" yaml:"via"`
	// Node hosting a pod, when it has been looked up.
	Node string `json:"node,omitempty" yaml:"node,omitempty"`
	// The remote command run at the final step.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
}
