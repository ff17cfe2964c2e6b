// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// Resolves user-specified target parameters into a capture target and the
// transport plan for reaching it.

package kcap

import (
	"fmt"
	"strings"

	"github.com/siemens/kcap/api"
)

// TargetParams are the (CLI-level) target parameters as given by the user:
// either a node to reach via SSH, optionally through jump hosts, or a pod
// (and container) to exec into. Exactly one kind of target must be given.
type TargetParams struct {
	Node      Endpoint
	Jumps     JumpPath
	Namespace string
	Pod       string
	Container string
}

// TransportPlan is either a [ShellChain] or an [OrchestratorExec].
type TransportPlan interface {
	isTransportPlan()
	// Target returns the capture target this plan reaches.
	Target() CaptureTarget
	// Describe returns the plan in form of a target description.
	Describe() *api.Target
	// Steps lists the individual transport steps, in order.
	Steps() []api.PlanStep
}

// ShellChain reaches a node via SSH, passing through the hops in order.
type ShellChain struct {
	Hops  JumpPath
	Final Endpoint
}

func (ShellChain) isTransportPlan() {}

// Target returns the node target at the end of the chain.
func (p ShellChain) Target() CaptureTarget { return NodeTarget{Endpoint: p.Final} }

// Endpoints returns all endpoints of the chain, jump hosts first and the
// final node last.
func (p ShellChain) Endpoints() []Endpoint {
	eps := make([]Endpoint, 0, len(p.Hops)+1)
	eps = append(eps, p.Hops...)
	return append(eps, p.Final)
}

// Describe returns the node target description.
func (p ShellChain) Describe() *api.Target {
	t := &api.Target{
		Name:      p.Final.Host,
		Type:      api.NodeTarget,
		NodeName:  p.Final.Host,
		Transport: api.TransportSSH,
	}
	for _, hop := range p.Hops {
		t.Hops = append(t.Hops, hop.String())
	}
	return t
}

// Steps lists the jump hosts followed by the final node.
func (p ShellChain) Steps() []api.PlanStep {
	steps := []api.PlanStep{}
	via := "local"
	for idx, ep := range p.Endpoints() {
		kind := api.StepJump
		if idx == len(p.Hops) {
			kind = api.StepNode
		}
		steps = append(steps, api.PlanStep{
			Step:    idx,
			Kind:    kind,
			Address: ep.Address(),
			User:    ep.User,
			Auth:    ep.Auth.String(),
			Via:     via,
		})
		via = ep.Address()
	}
	return steps
}

// OrchestratorExec reaches a pod's container via the kubectl exec facility.
// An empty Container selects the pod's default container.
type OrchestratorExec struct {
	Namespace string
	Pod       string
	Container string
}

func (OrchestratorExec) isTransportPlan() {}

// Target returns the pod target.
func (p OrchestratorExec) Target() CaptureTarget {
	return PodTarget{Namespace: p.Namespace, Pod: p.Pod, Container: p.Container}
}

// Describe returns the pod target description.
func (p OrchestratorExec) Describe() *api.Target {
	return &api.Target{
		Name:      p.Namespace + "/" + p.Pod,
		Type:      api.PodTarget,
		Namespace: p.Namespace,
		Container: p.Container,
		Transport: api.TransportExec,
	}
}

// Steps returns the single exec step.
func (p OrchestratorExec) Steps() []api.PlanStep {
	return []api.PlanStep{{
		Kind:    api.StepExec,
		Address: p.Target().String(),
		Via:     DefaultKubectl,
	}}
}

// Resolve maps the target parameters onto a transport plan. A node host
// always resolves to a [ShellChain] including the jump hosts in the order
// given; a pod always resolves to an [OrchestratorExec]. Specifying both a
// node and a pod, or neither, is an [InvalidTargetError]: Resolve never
// silently prefers one over the other.
func Resolve(params TargetParams) (TransportPlan, error) {
	hasNode := params.Node.Host != ""
	hasPod := params.Pod != "" || params.Namespace != "" || params.Container != ""
	switch {
	case hasNode && hasPod:
		return nil, &InvalidTargetError{
			Reason: fmt.Sprintf("both node %q and pod %q specified", params.Node.Host, podName(params))}
	case hasNode:
		hops := make(JumpPath, 0, len(params.Jumps))
		for idx, hop := range params.Jumps {
			if strings.TrimSpace(hop.Host) == "" {
				return nil, &InvalidTargetError{Reason: fmt.Sprintf("jump host %d without host name", idx)}
			}
			hops = append(hops, withDefaultPort(hop))
		}
		return ShellChain{Hops: hops, Final: withDefaultPort(params.Node)}, nil
	case hasPod:
		if params.Pod == "" {
			return nil, &InvalidTargetError{Reason: "namespace or container specified without pod"}
		}
		if len(params.Jumps) != 0 {
			return nil, &InvalidTargetError{Reason: "jump hosts can only be used with node targets"}
		}
		ns := params.Namespace
		if ns == "" {
			ns = DefaultNamespace
		}
		return OrchestratorExec{Namespace: ns, Pod: params.Pod, Container: params.Container}, nil
	}
	return nil, &InvalidTargetError{Reason: "neither node nor pod specified"}
}

func podName(params TargetParams) string {
	return PodTarget{Namespace: params.Namespace, Pod: params.Pod, Container: params.Container}.String()
}

func withDefaultPort(ep Endpoint) Endpoint {
	if ep.Port == 0 {
		ep.Port = DefaultSSHPort
	}
	return ep
}
