// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package pod

import (
	"context"
	"strings"

	"github.com/siemens/kcap"
	"github.com/siemens/kcap/cli"
	"github.com/siemens/kcap/cli/command"
	"github.com/siemens/kcap/transport"
	"github.com/spf13/cobra"
	"github.com/thediveo/go-plugger/v3"
)

var (
	// Pod is the name of the pod to capture in, optionally in
	// namespace/pod notation.
	Pod string
	// Namespace of the pod.
	Namespace string
	// Container to exec into; empty selects the pod's default container.
	Container string
	// Kubectl is the kubectl binary to use.
	Kubectl string
	// KubeContext names the kubeconfig context to use.
	KubeContext string
	// Kubeconfig names the kubeconfig file to use.
	Kubeconfig string
)

func init() {
	plugger.Group[cli.SetupCLI]().Register(
		PodSetupCLI, plugger.WithPlugin("pod"))
	plugger.Group[cli.TargetParams]().Register(
		PodTargetParams, plugger.WithPlugin("pod"))
	plugger.Group[cli.Connect]().Register(
		ConnectPod, plugger.WithPlugin("pod"))
	plugger.Group[cli.CommandExamples]().Register(
		func() map[string]string {
			return map[string]string{
				"plan": `# Show the kubectl exec command for capturing inside a pod, including its node.
kcap plan --pod kube-system/coredns-5d78c9869d-6hx4t --lookup-node -o wide`,
				"capture": `# Capture UDP traffic in a pod's sidecar container and pipe it into Wireshark.
kcap capture --pod mikroservice -n shop -c envoy --protocol udp -w - | wireshark -k -i -`,
			}
		},
		plugger.WithPlugin("pod"))
}

// PodSetupCLI registers the pod-related CLI flags.
func PodSetupCLI(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&Pod, "pod", "",
		"[namespace/]pod to capture in, reached via kubectl exec")
	pf.StringVarP(&Namespace, "namespace", "n", "",
		"Namespace of the pod, unless given with the pod (defaults to \"default\")")
	pf.StringVarP(&Container, "container", "c", "",
		"Container of the pod to exec into (defaults to the pod's default container)")
	pf.StringVar(&Kubectl, "kubectl", kcap.DefaultKubectl,
		"kubectl binary to use")
	pf.StringVar(&KubeContext, "kube-context", "",
		"Name of the kubeconfig context to use")
	pf.StringVar(&Kubeconfig, "kubeconfig", "",
		"Path to the kubeconfig file to use")
}

// PodTargetParams fills in the pod, namespace, and container, if specified.
func PodTargetParams(params *kcap.TargetParams) error {
	pod, namespace := Pod, Namespace
	if ns, name, ok := strings.Cut(pod, "/"); ok {
		if namespace != "" && namespace != ns {
			return &kcap.InvalidTargetError{
				Reason: "pod " + pod + " conflicts with namespace " + namespace}
		}
		if ns == "" || name == "" {
			return &kcap.InvalidTargetError{Reason: "invalid pod " + pod}
		}
		pod, namespace = name, ns
	}
	params.Pod = pod
	params.Namespace = namespace
	params.Container = Container
	return nil
}

// ConnectPod returns the kubectl exec transport for a
// [kcap.OrchestratorExec] plan.
func ConnectPod(ctx context.Context, plan kcap.TransportPlan) (kcap.Executor, error) {
	exec, ok := plan.(kcap.OrchestratorExec)
	if !ok {
		return nil, nil
	}
	return &transport.KubectlExec{
		CommonClientOptions: command.ClientOptions(),
		Program:             Kubectl,
		Kubeconfig:          Kubeconfig,
		Context:             KubeContext,
		Plan:                exec,
	}, nil
}
